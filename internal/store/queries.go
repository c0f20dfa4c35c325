package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Transaction is a loaded sales_transactions row.
type Transaction struct {
	TransactionID   string          `json:"transactionId"`
	CustomerID      int32           `json:"customerId"`
	ProductName     string          `json:"productName"`
	Quantity        int32           `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	TransactionDate time.Time       `json:"transactionDate"`
	Region          string          `json:"region,omitempty"`
	Status          string          `json:"status,omitempty"`
	TotalSale       decimal.Decimal `json:"totalSale"`
	LoadedAt        time.Time       `json:"loadedAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// RejectedRow is one dead letter.
type RejectedRow struct {
	ID              int64             `json:"id"`
	RunID           string            `json:"runId"`
	TransactionID   string            `json:"transactionId,omitempty"`
	RawData         map[string]string `json:"rawData"`
	RejectionReason string            `json:"rejectionReason"`
	Reasons         []string          `json:"reasons"`
	RejectedAt      time.Time         `json:"rejectedAt"`
}

// ReasonCount is one bucket of the dead-letter reason histogram.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

const getTransactionSQL = `
SELECT transaction_id, customer_id, product_name, quantity, unit_price::text,
       transaction_date, region, status, COALESCE(total_sale::text, '0'),
       loaded_at, updated_at
FROM sales_transactions
WHERE transaction_id = $1`

// GetTransaction returns the stored row for id, or ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	var (
		t                Transaction
		unitPrice, total string
		date             pgtype.Date
		region, status   pgtype.Text
	)

	err := s.db.QueryRow(ctx, getTransactionSQL, id).Scan(
		&t.TransactionID, &t.CustomerID, &t.ProductName, &t.Quantity, &unitPrice,
		&date, &region, &status, &total, &t.LoadedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}

	if t.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return Transaction{}, fmt.Errorf("decode unit_price: %w", err)
	}
	if t.TotalSale, err = decimal.NewFromString(total); err != nil {
		return Transaction{}, fmt.Errorf("decode total_sale: %w", err)
	}
	t.TransactionDate = date.Time
	t.Region = fromPgText(region)
	t.Status = fromPgText(status)
	return t, nil
}

const recentRejectionsSQL = `
SELECT id, COALESCE(run_id, ''), transaction_id, raw_data, rejection_reason, reasons, rejected_at
FROM rejected_rows
ORDER BY rejected_at DESC, id DESC
LIMIT $1`

// MaxRecentRejections caps RecentRejections.
const MaxRecentRejections = 1000

// RecentRejections returns up to limit dead letters, newest first.
func (s *Store) RecentRejections(ctx context.Context, limit int) ([]RejectedRow, error) {
	if limit <= 0 || limit > MaxRecentRejections {
		limit = MaxRecentRejections
	}

	rows, err := s.db.Query(ctx, recentRejectionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query rejected rows: %w", err)
	}
	defer rows.Close()

	out := []RejectedRow{}
	for rows.Next() {
		var (
			r     RejectedRow
			txnID pgtype.Text
		)
		if err := rows.Scan(&r.ID, &r.RunID, &txnID, &r.RawData, &r.RejectionReason, &r.Reasons, &r.RejectedAt); err != nil {
			return nil, fmt.Errorf("scan rejected row: %w", err)
		}
		r.TransactionID = fromPgText(txnID)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rejected rows: %w", err)
	}
	return out, nil
}

const histogramSQL = `
SELECT reason, count(*)
FROM rejected_rows, unnest(reasons) AS reason
GROUP BY reason
ORDER BY count(*) DESC, reason`

// RejectionHistogram counts every stored reason, most frequent first.
func (s *Store) RejectionHistogram(ctx context.Context) ([]ReasonCount, error) {
	rows, err := s.db.Query(ctx, histogramSQL)
	if err != nil {
		return nil, fmt.Errorf("query reason histogram: %w", err)
	}

	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[ReasonCount])
	if err != nil {
		return nil, fmt.Errorf("collect reason histogram: %w", err)
	}
	return out, nil
}
