/*
 * watchcopy
 * Copyright (C) 2025 Your Organization
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/your-org/watchcopy/internal/config"
	"github.com/your-org/watchcopy/internal/filewatcher"
	"github.com/your-org/watchcopy/internal/logsink"
	"github.com/your-org/watchcopy/internal/service"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func (o *rootOptions) settingsPath() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.DefaultPath()
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}

	root := &cobra.Command{
		Use:   "watchcopy",
		Short: "Copy newly created files into one folder once they are released",
		Long: `watchcopy watches source folders (recursively) for new files whose extension
matches a filter and copies each one into a single destination folder as soon
as the program writing it lets go of its exclusive lock.

Without a subcommand it behaves like "watchcopy run".`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, o)
		},
	}

	root.PersistentFlags().StringVar(&o.configPath, "config", "", "settings file (default $WATCHCOPY_CONFIG or <data dir>/"+config.DefaultFileName+")")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "override LogLevel (trace, debug, info, warn, error)")

	root.AddCommand(newRunCmd(o), newCheckCmd(o), newInitCmd(o))
	return root
}

func newRunCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch and copy until stopped",
		Long: `Watch the configured source folders and copy matching files until SIGINT or
SIGTERM, or until the Windows service control manager stops the service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, o)
		},
	}
}

func newInitCmd(o *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := o.settingsPath()
			if err != nil {
				return err
			}
			if err := config.WriteTemplate(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing settings file")
	return cmd
}

// bootstrapLogger reports failures that happen before the configured sink
// exists.
func bootstrapLogger(cmd *cobra.Command) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
}

func runWatch(cmd *cobra.Command, o *rootOptions) error {
	bootstrap := bootstrapLogger(cmd)
	path, err := o.settingsPath()
	if err != nil {
		bootstrap.Error().Err(err).Msg("Failed to locate settings file")
		return err
	}

	settings, err := config.Load(path)
	if err != nil {
		bootstrap.Error().Err(err).Str("config", path).Msg("Failed to load configuration")
		return err
	}

	resolved, err := settings.Resolve()
	if err != nil {
		bootstrap.Error().Err(err).Str("config", path).Msg("Invalid configuration")
		return err
	}

	if o.logLevel != "" {
		lvl, err := zerolog.ParseLevel(o.logLevel)
		if err != nil {
			bootstrap.Error().Err(err).Str("logLevel", o.logLevel).Msg("Invalid log level")
			return err
		}
		resolved.Logging.Level = lvl
	}
	resolved.Logging.Interactive = service.Interactive()
	resolved.Logging.Console = cmd.OutOrStdout()

	sink, err := logsink.Open(resolved.Logging)
	if err != nil {
		bootstrap.Error().Err(err).Msg("Failed to open log sink")
		return err
	}
	defer sink.Close()

	logger := sink.Logger
	logger.Info().
		Str("component", "config").
		Str("config", path).
		Str("logSink", string(resolved.Logging.Kind)).
		Str("logFile", sink.Path).
		Str("logLevel", resolved.Logging.Level.String()).
		Str("service", resolved.ServiceName).
		Msg("Configuration loaded")

	watcher, err := filewatcher.NewWatcher(resolved.Watch, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create file watcher")
		return err
	}

	if err := service.Run(cmd.Context(), resolved.ServiceName, watcher, logger); err != nil {
		logger.Error().Err(err).Msg("File watcher stopped with an error")
		return err
	}
	return nil
}
