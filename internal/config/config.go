// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
	Schedule ScheduleConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 10m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"10m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// MaxUploadSize is the largest accepted upload in bytes (default: 100MB)
	MaxUploadSize int64 `env:"SERVER_MAX_UPLOAD_SIZE" default:"104857600"`

	// MaxConcurrentRuns is the number of pipeline runs served in parallel (default: 4)
	MaxConcurrentRuns int `env:"SERVER_MAX_CONCURRENT_RUNS" default:"4"`

	// MaxWaitTime is how long a request waits for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"SERVER_MAX_WAIT_TIME" default:"30s"`

	// RunTimeout bounds a single pipeline run started over HTTP (default: 10m)
	RunTimeout time.Duration `env:"SERVER_RUN_TIMEOUT" default:"10m"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honored
	TrustedProxies []string `env:"SERVER_TRUSTED_PROXIES"`

	// APIKeys is a comma-separated list of keys accepted on X-API-Key.
	// Empty disables authentication.
	APIKeys []string `env:"SERVER_API_KEYS"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// PipelineConfig holds data-quality pipeline settings.
type PipelineConfig struct {
	// ContractFile is an optional YAML file overriding the default contract
	ContractFile string `env:"PIPELINE_CONTRACT_FILE"`

	// RejectedPolicy is how dead letters accumulate: append or dedupe (default: append)
	RejectedPolicy string `env:"PIPELINE_REJECTED_POLICY" default:"append"`

	// RejectedRetention is how long dead letters are kept; 0 keeps them forever (default: 0)
	RejectedRetention time.Duration `env:"PIPELINE_REJECTED_RETENTION" default:"0s"`

	// BatchSize is the number of statements per database batch (default: 500)
	BatchSize int `env:"PIPELINE_BATCH_SIZE" default:"500"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ScheduleConfig holds cron settings for the schedule command.
type ScheduleConfig struct {
	// RunCron is a standard 5-field cron spec for scheduled runs; empty disables them
	RunCron string `env:"SCHEDULE_RUN_CRON"`

	// RunPath is the file read on every scheduled run
	RunPath string `env:"SCHEDULE_RUN_PATH"`

	// RetentionCron is the cron spec for the dead-letter purge (default: daily at 03:00)
	RetentionCron string `env:"SCHEDULE_RETENTION_CRON" default:"0 3 * * *"`
}

// MetricsConfig holds OpenTelemetry exporter settings.
type MetricsConfig struct {
	// Enabled turns on OTLP metric export (default: false)
	Enabled bool `env:"METRICS_ENABLED" default:"false"`

	// Endpoint is the OTLP/gRPC collector address (default: localhost:4317)
	Endpoint string `env:"METRICS_ENDPOINT" default:"localhost:4317"`

	// ExportInterval is how often metrics are pushed (default: 60s)
	ExportInterval time.Duration `env:"METRICS_EXPORT_INTERVAL" default:"60s"`

	// Insecure disables TLS to the collector (default: true)
	Insecure bool `env:"METRICS_INSECURE" default:"true"`

	// ServiceName is reported as service.name (default: salesload)
	ServiceName string `env:"METRICS_SERVICE_NAME" default:"salesload"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
