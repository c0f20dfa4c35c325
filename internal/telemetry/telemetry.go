// Package telemetry installs the OpenTelemetry meter provider that the
// pipeline's run metrics are recorded on.
//
// When metrics are disabled the global no-op provider stays in place and
// instruments cost nothing. When enabled, metrics are pushed over OTLP/gRPC
// on a fixed interval.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultExportInterval is used when Config.ExportInterval is zero.
const DefaultExportInterval = 60 * time.Second

// Config holds exporter settings.
type Config struct {
	Enabled        bool
	Endpoint       string
	ExportInterval time.Duration
	Insecure       bool
	ServiceName    string
	ServiceVersion string
}

// Provider owns the SDK meter provider, if one was installed.
type Provider struct {
	provider *sdkmetric.MeterProvider
}

// Setup installs a global meter provider exporting to cfg.Endpoint.
// A disabled config returns a Provider over the global no-op meter.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		slog.Debug("metrics disabled")
		return &Provider{}, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP metrics exporter: %w", err)
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = DefaultExportInterval
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(newResource(cfg)),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)

	slog.Info("metrics exporter started",
		"endpoint", cfg.Endpoint,
		"interval", interval,
		"service", cfg.ServiceName,
	)
	return &Provider{provider: provider}, nil
}

// newResource describes this service. Attributes already present in the
// default resource are overridden.
func newResource(cfg Config) *resource.Resource {
	attrs := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
	res, err := resource.Merge(resource.Default(), attrs)
	if err != nil {
		// Schema URL conflict; the service attributes alone are enough.
		return attrs
	}
	return res
}

// MeterProvider returns the installed provider or the global one.
func (p *Provider) MeterProvider() metric.MeterProvider {
	if p.provider == nil {
		return otel.GetMeterProvider()
	}
	return p.provider
}

// Enabled reports whether an exporter is running.
func (p *Provider) Enabled() bool {
	return p.provider != nil
}

// Shutdown flushes pending metrics and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	if err := p.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter provider: %w", err)
	}
	return nil
}
