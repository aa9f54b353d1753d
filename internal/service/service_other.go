//go:build !windows

package service

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Interactive reports whether stdout is a terminal.
func Interactive() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// Run hosts r until a stop signal. name is only used by the Windows service
// control manager.
func Run(ctx context.Context, name string, r Runnable, logger zerolog.Logger) error {
	return RunInteractive(ctx, r, logger)
}
