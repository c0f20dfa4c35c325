package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB is an in-memory DBTX. It understands the store's upsert and
// dedupe insert statements well enough to report rows affected the way
// PostgreSQL would.
type fakeDB struct {
	mu sync.Mutex

	sales       map[string][]any // transaction_id -> upsert args
	dedupeKeys  map[string]bool
	copied      [][]any
	copyColumns []string
	batches     []*pgx.Batch
	execs       []fakeExec

	failStatement int // 1-indexed statement within a batch to fail; 0 = never
	copyErr       error
	execTag       string
}

type fakeExec struct {
	sql  string
	args []any
}

func newFakeDB() *fakeDB {
	return &fakeDB{sales: map[string][]any{}, dedupeKeys: map[string]bool{}}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, fakeExec{sql: sql, args: args})
	return pgconn.NewCommandTag(f.execTag), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: Query not supported")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{errors.New("fakeDB: QueryRow not supported")}
}

func (f *fakeDB) CopyFrom(_ context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	f.copyColumns = columns
	var n int64
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return n, err
		}
		f.copied = append(f.copied, values)
		n++
	}
	return n, src.Err()
}

// SendBatch applies the batch atomically: a failing statement discards
// every change the batch made.
func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)

	sales := make(map[string][]any, len(f.sales))
	for k, v := range f.sales {
		sales[k] = v
	}
	keys := make(map[string]bool, len(f.dedupeKeys))
	for k, v := range f.dedupeKeys {
		keys[k] = v
	}

	res := &fakeBatchResults{}
	for i, q := range b.QueuedQueries {
		if f.failStatement == i+1 {
			res.results = append(res.results, fakeResult{err: fmt.Errorf("fakeDB: statement %d failed", i+1)})
			return res
		}
		switch q.SQL {
		case upsertSQL:
			id := q.Arguments[0].(string)
			prev, ok := sales[id]
			if ok && reflect.DeepEqual(prev, q.Arguments) {
				res.results = append(res.results, fakeResult{tag: "INSERT 0 0"})
				continue
			}
			sales[id] = q.Arguments
			res.results = append(res.results, fakeResult{tag: "INSERT 0 1"})
		case dedupeInsertSQL:
			key := q.Arguments[6].(string)
			if keys[key] {
				res.results = append(res.results, fakeResult{tag: "INSERT 0 0"})
				continue
			}
			keys[key] = true
			res.results = append(res.results, fakeResult{tag: "INSERT 0 1"})
		default:
			res.results = append(res.results, fakeResult{err: fmt.Errorf("fakeDB: unexpected statement %q", q.SQL)})
			return res
		}
	}

	f.sales = sales
	f.dedupeKeys = keys
	return res
}

type fakeResult struct {
	tag string
	err error
}

type fakeBatchResults struct {
	results []fakeResult
	next    int
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if r.next >= len(r.results) {
		return pgconn.CommandTag{}, errors.New("fakeDB: batch already closed")
	}
	res := r.results[r.next]
	r.next++
	return pgconn.NewCommandTag(res.tag), res.err
}

func (r *fakeBatchResults) Query() (pgx.Rows, error) {
	return nil, errors.New("fakeDB: batch Query not supported")
}

func (r *fakeBatchResults) QueryRow() pgx.Row {
	return errRow{errors.New("fakeDB: batch QueryRow not supported")}
}

func (r *fakeBatchResults) Close() error { return nil }

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
