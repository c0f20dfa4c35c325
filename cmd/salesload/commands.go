package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/JonMunkholm/salesload/internal/core"
	"github.com/JonMunkholm/salesload/internal/scheduler"
	"github.com/JonMunkholm/salesload/internal/web"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the sales_transactions and rejected_rows tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := connect(cmd.Context(), opts.cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run the pipeline once on a CSV or XLSX file",
		Long: `Run validates the file's structure, transforms and checks every row,
upserts clean rows and stores rejected rows with their reasons.

A run that rejects rows still succeeds. Re-running the same file changes
nothing in sales_transactions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.pipeline.RunFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeSummaryJSON(cmd.OutOrStdout(), summary)
			}
			writeSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run summary as JSON")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			server := web.NewServer(opts.cfg.Server, web.Deps{
				Runner:  a.pipeline,
				Decoder: a.reader,
				Queries: a.store,
				DB:      a.pool,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			slog.Info("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			slog.Info("server stopped")
			return nil
		},
	}
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline and the dead-letter purge on cron schedules",
		Long: `Schedule runs the pipeline on SCHEDULE_RUN_PATH every SCHEDULE_RUN_CRON
tick and purges dead letters older than PIPELINE_REJECTED_RETENTION every
SCHEDULE_RETENTION_CRON tick. It stops on SIGINT or SIGTERM after running
jobs finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := scheduler.New(scheduler.Config{
				RunCron:       opts.cfg.Schedule.RunCron,
				RunPath:       opts.cfg.Schedule.RunPath,
				RetentionCron: opts.cfg.Schedule.RetentionCron,
				Retention:     opts.cfg.Pipeline.RejectedRetention,
			}, a.pipeline, a.store, slog.Default())
			if err != nil {
				return err
			}
			return s.Run(cmd.Context())
		},
	}
}

// writeSummary prints the run summary for a terminal.
func writeSummary(w io.Writer, s core.RunSummary) {
	fmt.Fprintf(w, "run %s: %s\n", s.RunID, s.Source)
	fmt.Fprintf(w, "  input rows:   %d\n", s.InputRows)
	fmt.Fprintf(w, "  clean:        %d (%d written)\n", s.Clean, s.Written)
	fmt.Fprintf(w, "  rejected:     %d (%.1f%%, %d stored)\n", s.Rejected, s.RejectionRate()*100, s.DeadLetters)
	if s.DuplicateIDs > 0 {
		fmt.Fprintf(w, "  duplicate ids: %d (last occurrence kept)\n", s.DuplicateIDs)
	}

	reasons := make([]string, 0, len(s.Reasons))
	for r := range s.Reasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "    %-30s %d\n", r, s.Reasons[r])
	}
	fmt.Fprintf(w, "  duration:     %s\n", s.Duration)
}

func writeSummaryJSON(w io.Writer, s core.RunSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		core.RunSummary
		RejectionRate float64 `json:"rejectionRate"`
	}{s, s.RejectionRate()})
}
