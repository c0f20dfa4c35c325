package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/JonMunkholm/salesload/internal/core"

// Run outcomes recorded on salesload.pipeline.runs.
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "input_unavailable"
	OutcomeCorrupt     = "input_corrupt"
	OutcomeStructural  = "structural_failure"
	OutcomePersistence = "persistence_failure"
	OutcomeError       = "error"
)

// Metrics records per-run instruments.
type Metrics struct {
	runs       metric.Int64Counter
	rows       metric.Int64Counter
	rejections metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewMetrics creates the pipeline instruments on mp.
// A nil mp uses the global provider (a no-op unless one is installed).
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	runs, err := meter.Int64Counter("salesload.pipeline.runs",
		metric.WithDescription("Pipeline runs by outcome"))
	if err != nil {
		return nil, fmt.Errorf("runs counter: %w", err)
	}
	rows, err := meter.Int64Counter("salesload.pipeline.rows",
		metric.WithDescription("Rows validated by verdict"))
	if err != nil {
		return nil, fmt.Errorf("rows counter: %w", err)
	}
	rejections, err := meter.Int64Counter("salesload.pipeline.rejections",
		metric.WithDescription("Rule violations by reason"))
	if err != nil {
		return nil, fmt.Errorf("rejections counter: %w", err)
	}
	duration, err := meter.Float64Histogram("salesload.pipeline.duration",
		metric.WithDescription("Pipeline run duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("duration histogram: %w", err)
	}

	return &Metrics{runs: runs, rows: rows, rejections: rejections, duration: duration}, nil
}

func (m *Metrics) recordRun(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) recordRows(ctx context.Context, clean, rejected int, reasons map[string]int) {
	if m == nil {
		return
	}
	m.rows.Add(ctx, int64(clean), metric.WithAttributes(attribute.String("verdict", "clean")))
	m.rows.Add(ctx, int64(rejected), metric.WithAttributes(attribute.String("verdict", "rejected")))
	for reason, n := range reasons {
		m.rejections.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
	}
}
