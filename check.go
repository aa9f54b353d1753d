package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/your-org/watchcopy/internal/config"
)

var (
	okLabel   = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnLabel = color.New(color.FgYellow, color.Bold).SprintFunc()
	failLabel = color.New(color.FgRed, color.Bold).SprintFunc()
	keyLabel  = color.New(color.FgCyan).SprintFunc()
)

var errCheckFailed = errors.New("settings are not valid")

func newCheckCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the settings and show what would be watched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := o.settingsPath()
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", failLabel("FAIL"), err)
				return err
			}
			return checkSettings(cmd.OutOrStdout(), path)
		},
	}
}

func checkSettings(out io.Writer, path string) error {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(out, "%s %s not found, using environment only\n", warnLabel("WARN"), path)
	} else {
		fmt.Fprintf(out, "%s %s\n", keyLabel("settings"), path)
	}

	settings, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(out, "%s %v\n", failLabel("FAIL"), err)
		return err
	}

	resolved, err := settings.Resolve()
	if err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(out, "%s %s\n", failLabel("FAIL"), line)
		}
		return errCheckFailed
	}

	w := resolved.Watch
	fmt.Fprintf(out, "%s %s\n", keyLabel("destination"), w.DestinationDirectory)
	for _, dir := range w.SourceDirectories {
		status := okLabel("OK  ")
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			status = warnLabel("WARN")
		}
		fmt.Fprintf(out, "%s %s %s\n", keyLabel("source"), status, dir)
	}
	fmt.Fprintf(out, "%s %s\n", keyLabel("extensions"), strings.Join(w.ExtensionFilters, ", "))
	if len(w.IgnorePatterns) > 0 {
		fmt.Fprintf(out, "%s %s\n", keyLabel("ignore"), strings.Join(w.IgnorePatterns, ", "))
	}
	fmt.Fprintf(out, "%s %s\n", keyLabel("retry"), w.RetryInterval)
	if w.StabilityWindow > 0 {
		fmt.Fprintf(out, "%s %s\n", keyLabel("stability window"), w.StabilityWindow)
	}
	if w.MaxLockWait > 0 {
		fmt.Fprintf(out, "%s %s\n", keyLabel("max lock wait"), w.MaxLockWait)
	}
	if w.MaxConcurrentCopies > 0 {
		fmt.Fprintf(out, "%s %d\n", keyLabel("max copies"), w.MaxConcurrentCopies)
	}

	l := resolved.Logging
	fmt.Fprintf(out, "%s %s (%s) %s\n", keyLabel("log"), l.Kind, l.Level, l.FilePath)
	fmt.Fprintf(out, "%s %s\n", keyLabel("service"), resolved.ServiceName)

	fmt.Fprintf(out, "%s settings are valid\n", okLabel("OK"))
	return nil
}
