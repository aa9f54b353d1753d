package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// Runnable is what the host starts and stops. filewatcher.Watcher satisfies
// it.
type Runnable interface {
	Start(ctx context.Context) error
	Stop()
}

// RunInteractive starts r and blocks until ctx ends or the process receives
// SIGINT or SIGTERM, then stops r.
func RunInteractive(ctx context.Context, r Runnable, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runUntilDone(ctx, r, logger.With().Str("component", "service").Logger())
}

func runUntilDone(ctx context.Context, r Runnable, logger zerolog.Logger) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	logger.Info().Msg("Service running, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	r.Stop()
	return nil
}
