// Package core provides the business logic for sales transaction loading.
// This package has no database or transport dependencies.
package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// FieldType represents the semantic type of a contract column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldInteger
)

// RawRecord is one source row. Cells are aligned with RawTable.Columns;
// a short row reads as empty cells.
type RawRecord struct {
	Line  int      // 1-indexed line in the source file
	Cells []string // Untyped cell values, in column order
}

// RawTable is the reader's output: an ordered column set plus its rows.
// The core never mutates a RawTable.
type RawTable struct {
	Source  string // File name or other origin, for logs and summaries
	Columns []string
	Rows    []RawRecord
}

// Cell returns the value at position pos, or "" when the row is short.
func (r RawRecord) Cell(pos int) string {
	if pos < 0 || pos >= len(r.Cells) {
		return ""
	}
	return r.Cells[pos]
}

// ResolvedDate is the outcome of ordered date-format trial.
// Valid is false when no format matched; the date is never guessed.
type ResolvedDate struct {
	Time   time.Time
	Format string // Contract pattern that matched (e.g. "%d/%m/%Y")
	Raw    string
	Valid  bool
}

// TransformedRecord is a typed, normalized sales row.
type TransformedRecord struct {
	Line            int
	TransactionID   string
	CustomerID      sql.NullInt64
	ProductName     string
	Quantity        decimal.NullDecimal
	UnitPrice       decimal.NullDecimal
	TransactionDate ResolvedDate
	Region          string
	Status          string
	TotalSale       decimal.NullDecimal

	// Raw holds the source cells keyed by their original column name,
	// kept for the dead-letter log.
	Raw map[string]string
}

// Rejection is a transformed row that violated one or more row rules.
type Rejection struct {
	Record     TransformedRecord
	Reasons    []string // Violated rule names, in rule order
	RejectedAt time.Time
}

// Verdict is the per-row outcome of row validation.
type Verdict struct {
	Record     TransformedRecord
	Reasons    []string
	RejectedAt time.Time
}

// Clean reports whether no rule was violated.
func (v Verdict) Clean() bool {
	return len(v.Reasons) == 0
}

// Persister writes pipeline output to durable storage.
// Implementations must make UpsertClean idempotent and AppendRejected
// append-only; neither may delete unrelated rows.
type Persister interface {
	// UpsertClean inserts or overwrites records by transaction id and
	// returns the number of rows actually written.
	UpsertClean(ctx context.Context, records []TransformedRecord) (int64, error)

	// AppendRejected adds dead letters tagged with runID and returns the
	// number of rows stored.
	AppendRejected(ctx context.Context, runID string, rejections []Rejection) (int64, error)
}

// TableReader loads a tabular file from a path.
type TableReader interface {
	ReadFile(ctx context.Context, path string) (RawTable, error)
}

// RunSummary reports the outcome of one pipeline run.
type RunSummary struct {
	RunID        string         `json:"runId"`
	Source       string         `json:"source"`
	InputRows    int            `json:"inputRows"`
	Clean        int            `json:"clean"`
	Rejected     int            `json:"rejected"`
	Written      int64          `json:"written"`
	DeadLetters  int64          `json:"deadLetters"`
	DuplicateIDs int            `json:"duplicateIds"`
	Reasons      map[string]int `json:"reasons"`
	Duration     time.Duration  `json:"duration"`
}

// RejectionRate returns rejected rows as a fraction of input rows (0-1).
func (s RunSummary) RejectionRate() float64 {
	if s.InputRows == 0 {
		return 0
	}
	return float64(s.Rejected) / float64(s.InputRows)
}
