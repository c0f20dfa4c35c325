package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/JonMunkholm/salesload/internal/config"
	"github.com/JonMunkholm/salesload/internal/core"
	"github.com/JonMunkholm/salesload/internal/ingest"
	"github.com/JonMunkholm/salesload/internal/store"
	"github.com/JonMunkholm/salesload/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
)

// app holds the collaborators shared by the run, serve and schedule commands.
type app struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	store     *store.Store
	reader    ingest.Reader
	pipeline  *core.Pipeline
	telemetry *telemetry.Provider
}

// connect opens the pool and makes sure the tables exist.
func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	if err := store.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// newApp wires the pipeline against PostgreSQL.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	contract, err := core.LoadContract(cfg.Pipeline.ContractFile)
	if err != nil {
		return nil, err
	}
	policy, err := store.ParsePolicy(cfg.Pipeline.RejectedPolicy)
	if err != nil {
		return nil, err
	}

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Metrics.Enabled,
		Endpoint:       cfg.Metrics.Endpoint,
		ExportInterval: cfg.Metrics.ExportInterval,
		Insecure:       cfg.Metrics.Insecure,
		ServiceName:    cfg.Metrics.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, err
	}
	metrics, err := core.NewMetrics(tp.MeterProvider())
	if err != nil {
		return nil, err
	}

	pool, err := connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	st := store.New(pool, store.Options{BatchSize: cfg.Pipeline.BatchSize, Policy: policy})
	reader := ingest.Reader{MaxFileSize: cfg.Server.MaxUploadSize}

	pipeline, err := core.NewPipeline(contract, st, core.Options{Reader: reader, Metrics: metrics})
	if err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("pipeline ready",
		"date_formats", contract.DateFormats,
		"status_enum", contract.StatusEnum,
		"rejected_policy", st.Policy(),
		"batch_size", cfg.Pipeline.BatchSize,
		"metrics", tp.Enabled(),
	)

	return &app{
		cfg:       cfg,
		pool:      pool,
		store:     st,
		reader:    reader,
		pipeline:  pipeline,
		telemetry: tp,
	}, nil
}

// Close flushes metrics and closes the pool.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		slog.Warn("metrics shutdown", "error", err)
	}
	a.pool.Close()
}

// version is reported on metrics; overridden at build time with -ldflags.
var version = "dev"
