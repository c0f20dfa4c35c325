package store

import (
	"context"
	"fmt"
)

// schemaSQL creates both destination tables. Every statement is idempotent.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS sales_transactions (
    transaction_id   VARCHAR(20) PRIMARY KEY,
    customer_id      INTEGER NOT NULL,
    product_name     VARCHAR(100) NOT NULL,
    quantity         INTEGER NOT NULL,
    unit_price       NUMERIC(10,2) NOT NULL,
    transaction_date DATE NOT NULL,
    region           VARCHAR(50),
    status           VARCHAR(20),
    total_sale       NUMERIC(10,2),
    loaded_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rejected_rows (
    id               BIGSERIAL PRIMARY KEY,
    run_id           TEXT,
    transaction_id   TEXT,
    raw_data         JSONB,
    rejection_reason TEXT NOT NULL,
    reasons          TEXT[] NOT NULL,
    rejected_at      TIMESTAMPTZ NOT NULL,
    dedupe_key       TEXT UNIQUE
);

CREATE INDEX IF NOT EXISTS rejected_rows_rejected_at_idx ON rejected_rows (rejected_at);
CREATE INDEX IF NOT EXISTS rejected_rows_run_id_idx ON rejected_rows (run_id);
CREATE INDEX IF NOT EXISTS rejected_rows_transaction_id_idx ON rejected_rows (transaction_id);
`

// EnsureSchema creates the destination tables if they do not exist.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
