// Package store persists pipeline output to PostgreSQL.
//
// Clean rows are upserted into sales_transactions with one conditional
// INSERT ... ON CONFLICT statement per row, so concurrent runs never race
// between an existence check and a write. Rejected rows are appended to
// rejected_rows together with every reason they failed.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/salesload/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool and pgx.Tx the store uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// RejectedPolicy controls how dead letters accumulate across runs.
type RejectedPolicy string

const (
	// PolicyAppend stores every rejection, including repeats of an
	// unchanged failing input.
	PolicyAppend RejectedPolicy = "append"
	// PolicyDedupe stores a rejection once per transaction id and reason list.
	PolicyDedupe RejectedPolicy = "dedupe"
)

// ParsePolicy converts a config value to a RejectedPolicy.
func ParsePolicy(s string) (RejectedPolicy, error) {
	switch p := RejectedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAppend, PolicyDedupe:
		return p, nil
	case "":
		return PolicyAppend, nil
	default:
		return "", fmt.Errorf("unknown rejected row policy %q (want append or dedupe)", s)
	}
}

// DefaultBatchSize is the number of statements sent per pgx batch.
const DefaultBatchSize = 500

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Options configures a Store.
type Options struct {
	BatchSize int              // Statements per batch; 0 uses DefaultBatchSize
	Policy    RejectedPolicy   // "" uses PolicyAppend
	Now       func() time.Time // nil uses time.Now
}

// Store implements core.Persister on PostgreSQL.
type Store struct {
	db        DBTX
	batchSize int
	policy    RejectedPolicy
	now       func() time.Time
}

var _ core.Persister = (*Store)(nil)

// New creates a Store on db.
func New(db DBTX, opts Options) *Store {
	s := &Store{
		db:        db,
		batchSize: opts.BatchSize,
		policy:    opts.Policy,
		now:       opts.Now,
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.policy == "" {
		s.policy = PolicyAppend
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Policy returns the store's dead-letter policy.
func (s *Store) Policy() RejectedPolicy {
	return s.policy
}

const upsertSQL = `
INSERT INTO sales_transactions AS t (
    transaction_id, customer_id, product_name, quantity, unit_price,
    transaction_date, region, status, total_sale
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (transaction_id) DO UPDATE SET
    customer_id      = EXCLUDED.customer_id,
    product_name     = EXCLUDED.product_name,
    quantity         = EXCLUDED.quantity,
    unit_price       = EXCLUDED.unit_price,
    transaction_date = EXCLUDED.transaction_date,
    region           = EXCLUDED.region,
    status           = EXCLUDED.status,
    total_sale       = EXCLUDED.total_sale,
    updated_at       = now()
WHERE (t.customer_id, t.product_name, t.quantity, t.unit_price,
       t.transaction_date, t.region, t.status, t.total_sale)
    IS DISTINCT FROM
      (EXCLUDED.customer_id, EXCLUDED.product_name, EXCLUDED.quantity, EXCLUDED.unit_price,
       EXCLUDED.transaction_date, EXCLUDED.region, EXCLUDED.status, EXCLUDED.total_sale)`

// UpsertClean inserts or overwrites records by transaction id and returns
// the number of rows inserted or changed. Rows whose stored values already
// match are left untouched, so repeating a run writes nothing.
//
// Records are sent in batches; each batch runs in one implicit transaction.
// Within a batch, a repeated id is applied in input order and the last
// occurrence wins.
func (s *Store) UpsertClean(ctx context.Context, records []core.TransformedRecord) (int64, error) {
	var written int64
	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))

		b := &pgx.Batch{}
		for _, r := range records[start:end] {
			b.Queue(upsertSQL, upsertArgs(r)...)
		}

		n, err := s.execBatch(ctx, b)
		written += n
		if err != nil {
			return written, fmt.Errorf("upsert rows %d-%d: %w", start+1, end, err)
		}
	}
	return written, nil
}

func upsertArgs(r core.TransformedRecord) []any {
	return []any{
		r.TransactionID,
		toPgInt4(r.CustomerID),
		r.ProductName,
		toPgQuantity(r.Quantity),
		toPgNumeric(r.UnitPrice),
		toPgDate(r.TransactionDate.Time, r.TransactionDate.Valid),
		toPgText(r.Region),
		toPgText(r.Status),
		toPgNumeric(r.TotalSale),
	}
}

var rejectedColumns = []string{
	"run_id", "transaction_id", "raw_data", "rejection_reason", "reasons", "rejected_at",
}

const dedupeInsertSQL = `
INSERT INTO rejected_rows (
    run_id, transaction_id, raw_data, rejection_reason, reasons, rejected_at, dedupe_key
) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (dedupe_key) DO NOTHING`

// AppendRejected stores dead letters tagged with runID and returns the
// number of rows added. Under PolicyAppend every rejection is copied in;
// under PolicyDedupe a rejection already on file is skipped.
// Existing rows are never updated or deleted.
func (s *Store) AppendRejected(ctx context.Context, runID string, rejections []core.Rejection) (int64, error) {
	if len(rejections) == 0 {
		return 0, nil
	}
	if s.policy == PolicyDedupe {
		return s.appendDeduped(ctx, runID, rejections)
	}

	rows := make([][]any, len(rejections))
	for i, r := range rejections {
		rows[i] = []any{
			runID,
			toPgText(r.Record.TransactionID),
			rawData(r.Record),
			core.JoinReasons(r.Reasons),
			r.Reasons,
			r.RejectedAt,
		}
	}

	n, err := s.db.CopyFrom(ctx, pgx.Identifier{"rejected_rows"}, rejectedColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy rejected rows: %w", err)
	}
	return n, nil
}

func (s *Store) appendDeduped(ctx context.Context, runID string, rejections []core.Rejection) (int64, error) {
	var added int64
	for start := 0; start < len(rejections); start += s.batchSize {
		end := min(start+s.batchSize, len(rejections))

		b := &pgx.Batch{}
		for _, r := range rejections[start:end] {
			b.Queue(dedupeInsertSQL,
				runID,
				toPgText(r.Record.TransactionID),
				rawData(r.Record),
				core.JoinReasons(r.Reasons),
				r.Reasons,
				r.RejectedAt,
				DedupeKey(r),
			)
		}

		n, err := s.execBatch(ctx, b)
		added += n
		if err != nil {
			return added, fmt.Errorf("insert rejected rows %d-%d: %w", start+1, end, err)
		}
	}
	return added, nil
}

// DedupeKey identifies a rejection by transaction id and reason list.
// Rows without an id are keyed by a digest of their raw cells instead.
func DedupeKey(r core.Rejection) string {
	id := r.Record.TransactionID
	if id == "" {
		raw, _ := json.Marshal(r.Record.Raw) // map keys marshal sorted
		sum := sha256.Sum256(raw)
		id = "raw:" + hex.EncodeToString(sum[:])
	}
	return id + "|" + strings.Join(r.Reasons, ",")
}

func rawData(r core.TransformedRecord) map[string]string {
	if r.Raw == nil {
		return map[string]string{}
	}
	return r.Raw
}

// execBatch sends b and sums rows affected. Results are read in order up
// to the first failing statement; a failed batch reports zero rows since
// its implicit transaction is rolled back.
func (s *Store) execBatch(ctx context.Context, b *pgx.Batch) (int64, error) {
	br := s.db.SendBatch(ctx, b)

	var affected int64
	var execErr error
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			execErr = fmt.Errorf("statement %d: %w", i+1, err)
			break
		}
		affected += tag.RowsAffected()
	}

	closeErr := br.Close()
	if execErr != nil {
		return 0, execErr
	}
	if closeErr != nil {
		return 0, closeErr
	}
	return affected, nil
}

// PurgeRejected deletes dead letters older than maxAge and returns the
// number removed. A non-positive maxAge deletes nothing.
func (s *Store) PurgeRejected(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-maxAge)

	tag, err := s.db.Exec(ctx, "DELETE FROM rejected_rows WHERE rejected_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge rejected rows: %w", err)
	}
	return tag.RowsAffected(), nil
}
