// Package scheduler runs the pipeline and dead-letter maintenance on cron
// schedules.
//
// Two jobs are supported:
//  1. Scheduled run: load the file at RunPath every RunCron tick. A tick that
//     fires while the previous run is still going is skipped.
//  2. Retention purge: delete dead letters older than Retention every
//     RetentionCron tick. Disabled when Retention is zero.
//
// Individual job failures are logged and never stop the scheduler. Input
// that has not been delivered yet is a warning; the next tick retries it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/salesload/internal/core"
	"github.com/robfig/cron/v3"
)

// Runner runs the pipeline against a file.
type Runner interface {
	RunFile(ctx context.Context, path string) (core.RunSummary, error)
}

// Purger deletes dead letters older than maxAge.
type Purger interface {
	PurgeRejected(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Config holds the cron schedules. Empty expressions disable a job.
type Config struct {
	RunCron       string
	RunPath       string
	RetentionCron string
	Retention     time.Duration
}

// Scheduler owns the cron instance and its jobs.
type Scheduler struct {
	cfg    Config
	runner Runner
	purger Purger
	logger *slog.Logger
	cron   *cron.Cron
}

// New validates the configured jobs. Nothing runs until Run.
// A nil logger uses slog.Default.
func New(cfg Config, runner Runner, purger Purger, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	if cfg.RunCron != "" {
		if runner == nil {
			return nil, errors.New("scheduler: run job needs a runner")
		}
		if cfg.RunPath == "" {
			return nil, errors.New("scheduler: run job needs a path")
		}
		if _, err := cron.ParseStandard(cfg.RunCron); err != nil {
			return nil, fmt.Errorf("scheduler: run cron %q: %w", cfg.RunCron, err)
		}
	}
	if cfg.retentionEnabled() {
		if purger == nil {
			return nil, errors.New("scheduler: retention job needs a purger")
		}
		if _, err := cron.ParseStandard(cfg.RetentionCron); err != nil {
			return nil, fmt.Errorf("scheduler: retention cron %q: %w", cfg.RetentionCron, err)
		}
	}

	cl := cronLogger{logger: logger}
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		purger: purger,
		logger: logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}, nil
}

func (c Config) retentionEnabled() bool {
	return c.RetentionCron != "" && c.Retention > 0
}

// Jobs returns the number of jobs the configuration enables.
func (s *Scheduler) Jobs() int {
	n := 0
	if s.cfg.RunCron != "" {
		n++
	}
	if s.cfg.retentionEnabled() {
		n++
	}
	return n
}

// Run starts the jobs and blocks until ctx is cancelled, then waits for
// running jobs to finish. Jobs run with ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Jobs() == 0 {
		return errors.New("scheduler: no jobs configured")
	}
	if s.cfg.RunCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.RunCron, func() { s.runOnce(ctx) }); err != nil {
			return fmt.Errorf("scheduler: run cron: %w", err)
		}
	}
	if s.cfg.retentionEnabled() {
		if _, err := s.cron.AddFunc(s.cfg.RetentionCron, func() { s.purgeOnce(ctx) }); err != nil {
			return fmt.Errorf("scheduler: retention cron: %w", err)
		}
	}

	s.logger.Info("scheduler started",
		"run_cron", s.cfg.RunCron,
		"run_path", s.cfg.RunPath,
		"retention_cron", s.cfg.RetentionCron,
		"retention", s.cfg.Retention,
		"jobs", s.Jobs(),
	)
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// runOnce performs one scheduled pipeline run.
func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	summary, err := s.runner.RunFile(ctx, s.cfg.RunPath)
	switch {
	case err == nil:
		s.logger.Info("scheduled run completed",
			"run_id", summary.RunID,
			"clean", summary.Clean,
			"rejected", summary.Rejected,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	case errors.Is(err, core.ErrInputUnavailable):
		s.logger.Warn("scheduled run skipped; input not available", "path", s.cfg.RunPath, "error", err)
	default:
		s.logger.Error("scheduled run failed", "path", s.cfg.RunPath, "error", err)
	}
}

// purgeOnce deletes expired dead letters.
func (s *Scheduler) purgeOnce(ctx context.Context) {
	start := time.Now()
	purged, err := s.purger.PurgeRejected(ctx, s.cfg.Retention)
	if err != nil {
		s.logger.Error("retention purge failed", "error", err)
		return
	}
	s.logger.Info("purged old dead letters",
		"rows_purged", purged,
		"retention", s.cfg.Retention,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
