package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/JonMunkholm/salesload/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func record(id, product string) core.TransformedRecord {
	return core.TransformedRecord{
		Line:          2,
		TransactionID: id,
		CustomerID:    sql.NullInt64{Int64: 1042, Valid: true},
		ProductName:   product,
		Quantity:      dec("3"),
		UnitPrice:     dec("19.99"),
		TransactionDate: core.ResolvedDate{
			Time:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			Valid: true,
		},
		Region:    "north",
		Status:    "completed",
		TotalSale: dec("59.97"),
		Raw:       map[string]string{"transaction_id": id, "product_name": product},
	}
}

func rejection(id string, reasons ...string) core.Rejection {
	r := record(id, "Widget")
	return core.Rejection{
		Record:     r,
		Reasons:    reasons,
		RejectedAt: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    RejectedPolicy
		wantErr bool
	}{
		{"append", PolicyAppend, false},
		{" Dedupe ", PolicyDedupe, false},
		{"", PolicyAppend, false},
		{"compact", "", true},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(newFakeDB(), Options{})
	assert.Equal(t, DefaultBatchSize, s.batchSize)
	assert.Equal(t, PolicyAppend, s.Policy())
	assert.NotNil(t, s.now)
}

func TestUpsertClean_Idempotent(t *testing.T) {
	db := newFakeDB()
	s := New(db, Options{})
	ctx := context.Background()
	records := []core.TransformedRecord{record("T1", "Widget"), record("T2", "Gadget")}

	written, err := s.UpsertClean(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, int64(2), written)

	written, err = s.UpsertClean(ctx, records)
	require.NoError(t, err)
	assert.Zero(t, written, "unchanged rows are not rewritten")
	assert.Len(t, db.sales, 2)

	changed := record("T2", "Gadget XL")
	written, err = s.UpsertClean(ctx, []core.TransformedRecord{changed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), written)
	assert.Equal(t, "Gadget XL", db.sales["T2"][2])
}

func TestUpsertClean_Args(t *testing.T) {
	db := newFakeDB()
	s := New(db, Options{})

	r := record("T1", "Widget")
	r.Region = ""
	_, err := s.UpsertClean(context.Background(), []core.TransformedRecord{r})
	require.NoError(t, err)

	require.Len(t, db.batches, 1)
	args := db.batches[0].QueuedQueries[0].Arguments
	require.Len(t, args, 9)

	assert.Equal(t, "T1", args[0])
	assert.Equal(t, pgtype.Int4{Int32: 1042, Valid: true}, args[1])
	assert.Equal(t, pgtype.Int4{Int32: 3, Valid: true}, args[3])

	price := args[4].(pgtype.Numeric)
	v, err := price.Value()
	require.NoError(t, err)
	assert.Equal(t, "19.99", v)

	total := args[8].(pgtype.Numeric)
	v, err = total.Value()
	require.NoError(t, err)
	assert.Equal(t, "59.97", v)

	date := args[5].(pgtype.Date)
	assert.True(t, date.Valid)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), date.Time)

	assert.False(t, args[6].(pgtype.Text).Valid, "empty region is stored as NULL")
}

func TestUpsertClean_Batching(t *testing.T) {
	db := newFakeDB()
	s := New(db, Options{BatchSize: 2})

	var records []core.TransformedRecord
	for i := 0; i < 5; i++ {
		records = append(records, record(fmt.Sprintf("T%d", i), "Widget"))
	}

	written, err := s.UpsertClean(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, int64(5), written)
	require.Len(t, db.batches, 3)
	assert.Equal(t, 2, db.batches[0].Len())
	assert.Equal(t, 1, db.batches[2].Len())
}

func TestUpsertClean_DuplicateIDLastWins(t *testing.T) {
	db := newFakeDB()
	s := New(db, Options{})

	_, err := s.UpsertClean(context.Background(), []core.TransformedRecord{
		record("T1", "First"),
		record("T1", "Second"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Second", db.sales["T1"][2])
}

func TestUpsertClean_FailureRollsBackBatch(t *testing.T) {
	db := newFakeDB()
	db.failStatement = 2
	s := New(db, Options{})

	written, err := s.UpsertClean(context.Background(), []core.TransformedRecord{
		record("T1", "Widget"),
		record("T2", "Gadget"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 2")
	assert.Zero(t, written)
	assert.Empty(t, db.sales)
}

func TestUpsertClean_Empty(t *testing.T) {
	db := newFakeDB()
	written, err := New(db, Options{}).UpsertClean(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Empty(t, db.batches)
}

func TestAppendRejected_AppendPolicyCopiesEveryRow(t *testing.T) {
	db := newFakeDB()
	s := New(db, Options{Policy: PolicyAppend})
	ctx := context.Background()

	rejections := []core.Rejection{
		rejection("T1", core.RuleQuantityNotPositive, core.RuleUnparseableDate),
		rejection("", core.RuleMissingTransactionID),
	}

	n, err := s.AppendRejected(ctx, "run-1", rejections)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.AppendRejected(ctx, "run-2", rejections)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, db.copied, 4, "append policy never deduplicates")

	assert.Equal(t, rejectedColumns, db.copyColumns)
	first := db.copied[0]
	assert.Equal(t, "run-1", first[0])
	assert.Equal(t, pgtype.Text{String: "T1", Valid: true}, first[1])
	assert.Equal(t, "quantity_not_positive | unparseable_transaction_date", first[3])
	assert.Equal(t, []string{core.RuleQuantityNotPositive, core.RuleUnparseableDate}, first[4])
	assert.False(t, db.copied[1][1].(pgtype.Text).Valid, "missing id is stored as NULL")
}

func TestAppendRejected_DedupePolicy(t *testing.T) {
	db := newFakeDB()
	s := New(db, Options{Policy: PolicyDedupe})
	ctx := context.Background()

	rejections := []core.Rejection{
		rejection("T1", core.RuleInvalidStatus),
		rejection("T2", core.RuleInvalidStatus),
	}

	n, err := s.AppendRejected(ctx, "run-1", rejections)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.AppendRejected(ctx, "run-2", rejections)
	require.NoError(t, err)
	assert.Zero(t, n, "unchanged failures are not stored twice")

	n, err = s.AppendRejected(ctx, "run-3", []core.Rejection{
		rejection("T1", core.RuleInvalidStatus, core.RuleMissingProductName),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a new reason list is a new dead letter")
	assert.Empty(t, db.copied)
}

func TestAppendRejected_Empty(t *testing.T) {
	db := newFakeDB()
	n, err := New(db, Options{}).AppendRejected(context.Background(), "run-1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, db.copied)
}

func TestAppendRejected_CopyError(t *testing.T) {
	db := newFakeDB()
	db.copyErr = errors.New("connection reset")

	_, err := New(db, Options{}).AppendRejected(context.Background(), "run-1",
		[]core.Rejection{rejection("T1", core.RuleInvalidStatus)})
	assert.ErrorContains(t, err, "copy rejected rows")
}

func TestDedupeKey(t *testing.T) {
	a := rejection("T1", core.RuleInvalidStatus, core.RuleMissingProductName)
	assert.Equal(t, "T1|invalid_status,missing_product_name", DedupeKey(a))

	noID1 := rejection("", core.RuleMissingTransactionID)
	noID1.Record.Raw = map[string]string{"product_name": "Widget", "region": "north"}
	noID2 := rejection("", core.RuleMissingTransactionID)
	noID2.Record.Raw = map[string]string{"region": "north", "product_name": "Widget"}
	noID3 := rejection("", core.RuleMissingTransactionID)
	noID3.Record.Raw = map[string]string{"product_name": "Gadget"}

	assert.Equal(t, DedupeKey(noID1), DedupeKey(noID2))
	assert.NotEqual(t, DedupeKey(noID1), DedupeKey(noID3))
	assert.Contains(t, DedupeKey(noID1), "raw:")
}

func TestPurgeRejected(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	db := newFakeDB()
	db.execTag = "DELETE 7"
	s := New(db, Options{Now: func() time.Time { return now }})

	n, err := s.PurgeRejected(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "DELETE FROM rejected_rows")
	assert.Equal(t, now.Add(-30*24*time.Hour), db.execs[0].args[0])
}

func TestPurgeRejected_KeepForever(t *testing.T) {
	db := newFakeDB()
	n, err := New(db, Options{}).PurgeRejected(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, db.execs)
}

func TestEnsureSchema(t *testing.T) {
	db := newFakeDB()
	require.NoError(t, EnsureSchema(context.Background(), db))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS sales_transactions")
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS rejected_rows")
}

// TestPipelineAgainstStore runs the whole pipeline twice on the same input
// and checks the stored state converges after the first run.
func TestPipelineAgainstStore(t *testing.T) {
	db := newFakeDB()
	p, err := core.NewPipeline(core.DefaultContract(), New(db, Options{}), core.Options{})
	require.NoError(t, err)

	table := core.RawTable{
		Source: "sales.csv",
		Columns: []string{
			"transaction_id", "customer_id", "product_name", "quantity",
			"unit_price", "transaction_date", "region", "status",
		},
		Rows: []core.RawRecord{
			{Line: 2, Cells: []string{"TXN-1", "101", "Widget", "3", "19.99", "2024-03-15", "north", "completed"}},
			{Line: 3, Cells: []string{"TXN-2", "102", "Gadget", "-1", "5.00", "someday", "south", "pending"}},
			{Line: 4, Cells: []string{"TXN-3", "103", "Gizmo", "1", "0.10", "01/02/2024", "east", ""}},
		},
	}

	first, err := p.Run(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Written)
	assert.Equal(t, int64(1), first.DeadLetters)
	snapshot := make(map[string][]any, len(db.sales))
	for k, v := range db.sales {
		snapshot[k] = v
	}

	second, err := p.Run(context.Background(), table)
	require.NoError(t, err)
	assert.Zero(t, second.Written)
	assert.Equal(t, snapshot, db.sales)

	rej := db.copied[0]
	assert.Equal(t, []string{core.RuleQuantityNotPositive, core.RuleUnparseableDate}, rej[4])

	date := db.sales["TXN-3"][5].(pgtype.Date)
	assert.Equal(t, time.February, date.Time.Month())
	assert.Equal(t, 1, date.Time.Day())
}
