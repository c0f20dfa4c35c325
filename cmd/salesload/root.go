package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/JonMunkholm/salesload/internal/config"
	"github.com/JonMunkholm/salesload/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags plus the configuration they produce.
type rootOptions struct {
	envFile  string
	logLevel string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "salesload",
		Short: "Load sales transaction exports into PostgreSQL with data-quality checks",
		Long: `salesload validates a tabular sales export, normalizes it, upserts the
clean rows into sales_transactions and keeps every rejected row, with all of
its reasons, in rejected_rows.

Configuration comes from environment variables, optionally read from a
.env file first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env",
		"Path to a .env file; missing files are ignored")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newRunCmd(opts),
		newServeCmd(opts),
		newScheduleCmd(opts),
	)
	return cmd
}

// load reads the .env file, the configuration and sets up logging.
func (o *rootOptions) load() error {
	// Overload so the file wins over stale shell exports
	if o.envFile != "" {
		if err := godotenv.Overload(o.envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			slog.Debug("no .env file found, using environment variables", "path", o.envFile)
		} else {
			slog.Debug("loaded .env file", "path", o.envFile)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	o.cfg = cfg
	return nil
}
