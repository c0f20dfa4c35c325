package store

import (
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Helper functions for type conversion

func toPgNumeric(d decimal.NullDecimal) pgtype.Numeric {
	var n pgtype.Numeric
	if !d.Valid {
		return n
	}
	if err := n.Scan(d.Decimal.String()); err != nil {
		return pgtype.Numeric{}
	}
	return n
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgInt4(n sql.NullInt64) pgtype.Int4 {
	if !n.Valid {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(n.Int64), Valid: true}
}

func toPgQuantity(d decimal.NullDecimal) pgtype.Int4 {
	if !d.Valid {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(d.Decimal.IntPart()), Valid: true}
}

func toPgDate(t time.Time, valid bool) pgtype.Date {
	if !valid {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}

func fromPgText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}
