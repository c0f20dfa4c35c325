package core

// pipeline.go sequences one run:
//
//	Start → StructuralCheck {Pass → Transform | Fail → Halt}
//	      → RowValidate → Partition {Clean, Rejected}
//	      → PersistClean, PersistRejected → End
//
// Halt is terminal and performs no writes.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/salesload/internal/logging"
	"github.com/google/uuid"
)

// Pipeline runs the data-quality stages against a Persister.
type Pipeline struct {
	contract    *Contract
	transformer *Transformer
	validator   *RowValidator
	persister   Persister
	reader      TableReader
	metrics     *Metrics
	now         func() time.Time
}

// Options holds optional pipeline collaborators.
type Options struct {
	Reader  TableReader      // Required only for RunFile
	Metrics *Metrics         // nil disables metrics
	Now     func() time.Time // nil uses time.Now
}

// NewPipeline creates a pipeline for contract c writing to p.
func NewPipeline(c *Contract, p Persister, opts Options) (*Pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("pipeline: persister is required")
	}

	transformer, err := NewTransformer(c)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		contract:    c,
		transformer: transformer,
		validator:   NewRowValidator(c, now),
		persister:   p,
		reader:      opts.Reader,
		metrics:     opts.Metrics,
		now:         now,
	}, nil
}

// Contract returns the pipeline's contract.
func (p *Pipeline) Contract() *Contract {
	return p.contract
}

// RunFile reads path with the configured reader and runs the pipeline.
// Reader failures are returned unchanged so callers can branch on
// ErrInputUnavailable and ErrInputCorrupt.
func (p *Pipeline) RunFile(ctx context.Context, path string) (RunSummary, error) {
	if p.reader == nil {
		return RunSummary{}, errors.New("pipeline: no reader configured")
	}

	start := p.now()
	table, err := p.reader.ReadFile(ctx, path)
	if err != nil {
		logger := logging.WithFields(ctx, "source", path)
		outcome := OutcomeError
		switch {
		case errors.Is(err, ErrInputUnavailable):
			outcome = OutcomeUnavailable
			logger.Warn("input not available yet", "error", err)
		case errors.Is(err, ErrInputCorrupt):
			outcome = OutcomeCorrupt
			logger.Error("input unreadable", "error", err)
		default:
			logger.Error("read input", "error", err)
		}
		p.metrics.recordRun(ctx, outcome, p.now().Sub(start))
		return RunSummary{Source: path}, err
	}

	return p.Run(ctx, table)
}

// Run processes table and persists the result.
// Only structural and persistence failures are returned as errors;
// rejected rows are part of a successful run.
func (p *Pipeline) Run(ctx context.Context, table RawTable) (RunSummary, error) {
	start := p.now()
	summary := RunSummary{
		RunID:     uuid.New().String(),
		Source:    table.Source,
		InputRows: len(table.Rows),
		Reasons:   map[string]int{},
	}
	logger := logging.WithFields(ctx, "run_id", summary.RunID, "source", table.Source)
	logger.Info("pipeline started", "rows", len(table.Rows), "columns", len(table.Columns))

	finish := func(outcome string, err error) (RunSummary, error) {
		summary.Duration = p.now().Sub(start)
		p.metrics.recordRun(ctx, outcome, summary.Duration)
		return summary, err
	}

	report, err := ValidateStructure(table, p.contract)
	if err != nil {
		logger.Error("structural validation failed; run halted", "error", err)
		return finish(OutcomeStructural, err)
	}
	summary.DuplicateIDs = report.DuplicateIDs
	logger.Info("structural validation passed")
	if report.DuplicateIDs > 0 {
		logger.Warn("source contains duplicate transaction ids; last occurrence wins",
			"duplicates", report.DuplicateIDs)
	}

	records, err := p.transformer.Transform(table)
	if err != nil {
		logger.Error("transformation failed", "error", err)
		return finish(OutcomeError, err)
	}
	logger.Debug("transformation complete", "rows", len(records))

	clean, rejected := p.validator.Partition(records)
	summary.Clean = len(clean)
	summary.Rejected = len(rejected)
	summary.Reasons = ReasonHistogram(rejected)
	p.metrics.recordRows(ctx, summary.Clean, summary.Rejected, summary.Reasons)

	logger.Info("row validation complete", "clean", summary.Clean, "rejected", summary.Rejected)
	for reason, n := range summary.Reasons {
		logger.Info("rejection reason", "reason", reason, "rows", n)
	}
	for _, r := range rejected {
		logger.Debug("row rejected", "rejection", r.String())
	}
	if summary.Clean == 0 {
		logger.Warn("no clean rows in input; only dead letters will be stored")
	}

	summary.Written, err = p.persister.UpsertClean(ctx, clean)
	if err != nil {
		err = asPersistenceError("upsert clean", err)
		logger.Error("load clean rows failed", "error", err)
		return finish(OutcomePersistence, err)
	}

	summary.DeadLetters, err = p.persister.AppendRejected(ctx, summary.RunID, rejected)
	if err != nil {
		err = asPersistenceError("append rejected", err)
		logger.Error("store rejected rows failed", "error", err)
		return finish(OutcomePersistence, err)
	}

	summary, err = finish(OutcomeSuccess, nil)
	logger.Info("pipeline complete",
		"input_rows", summary.InputRows,
		"clean", summary.Clean,
		"written", summary.Written,
		"rejected", summary.Rejected,
		"dead_letters", summary.DeadLetters,
		"rejection_rate", fmt.Sprintf("%.1f%%", summary.RejectionRate()*100),
		"duration", summary.Duration,
	)
	return summary, err
}

func asPersistenceError(op string, err error) error {
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
