package core

// validation.go provides business-rule validation for transformed rows.
//
// Every rule in the contract is evaluated for every row, without
// short-circuiting, so a rejected row carries the complete list of
// violations. Evaluation order follows the contract's rule order, which
// keeps reason lists stable across runs.

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Rule names persisted as rejection reasons.
const (
	RuleMissingTransactionID = "missing_transaction_id"
	RuleInvalidCustomerID    = "invalid_customer_id"
	RuleMissingProductName   = "missing_product_name"
	RuleQuantityNotPositive  = "quantity_not_positive"
	RuleQuantityNotWhole     = "quantity_not_whole"
	RuleInvalidUnitPrice     = "invalid_unit_price"
	RuleUnitPriceTooPrecise  = "unit_price_too_precise"
	RuleUnparseableDate      = "unparseable_transaction_date"
	RuleInvalidStatus        = "invalid_status"
	RuleTotalSaleNotComputed = "total_sale_not_computed"
	RuleAmountOutOfRange     = "amount_out_of_range"
	RuleFieldTooLong         = "field_too_long"
)

// Column widths of sales_transactions.
const (
	MaxTransactionIDLen = 20
	MaxProductNameLen   = 100
	MaxRegionLen        = 50
	MaxStatusLen        = 20
)

// maxAmount is the exclusive upper bound of a NUMERIC(10,2) column.
var maxAmount = decimal.New(1, 8)

var maxInteger = decimal.NewFromInt32(1<<31 - 1)

// DefaultRowRules returns the sales row rules bound to contract c.
// The status rule reads c.StatusEnum at evaluation time.
func DefaultRowRules(c *Contract) []RowRule {
	return []RowRule{
		{Name: RuleMissingTransactionID, Check: func(r TransformedRecord) bool {
			return r.TransactionID != ""
		}},
		{Name: RuleInvalidCustomerID, Check: func(r TransformedRecord) bool {
			return r.CustomerID.Valid
		}},
		{Name: RuleMissingProductName, Check: func(r TransformedRecord) bool {
			return r.ProductName != ""
		}},
		{Name: RuleQuantityNotPositive, Check: func(r TransformedRecord) bool {
			return r.Quantity.Valid && r.Quantity.Decimal.IsPositive()
		}},
		{Name: RuleQuantityNotWhole, Check: func(r TransformedRecord) bool {
			return !r.Quantity.Valid || r.Quantity.Decimal.IsInteger()
		}},
		{Name: RuleInvalidUnitPrice, Check: func(r TransformedRecord) bool {
			return r.UnitPrice.Valid && !r.UnitPrice.Decimal.IsNegative()
		}},
		{Name: RuleUnitPriceTooPrecise, Check: func(r TransformedRecord) bool {
			return !r.UnitPrice.Valid || r.UnitPrice.Decimal.Equal(r.UnitPrice.Decimal.Round(2))
		}},
		{Name: RuleUnparseableDate, Check: func(r TransformedRecord) bool {
			return r.TransactionDate.Valid
		}},
		{Name: RuleInvalidStatus, Check: func(r TransformedRecord) bool {
			return c.AllowsStatus(r.Status)
		}},
		{Name: RuleTotalSaleNotComputed, Check: func(r TransformedRecord) bool {
			return r.TotalSale.Valid
		}},
		{Name: RuleAmountOutOfRange, Check: func(r TransformedRecord) bool {
			return fitsAmount(r.UnitPrice) && fitsAmount(r.TotalSale) && fitsInteger(r.Quantity)
		}},
		{Name: RuleFieldTooLong, Check: func(r TransformedRecord) bool {
			return utf8.RuneCountInString(r.TransactionID) <= MaxTransactionIDLen &&
				utf8.RuneCountInString(r.ProductName) <= MaxProductNameLen &&
				utf8.RuneCountInString(r.Region) <= MaxRegionLen &&
				utf8.RuneCountInString(r.Status) <= MaxStatusLen
		}},
	}
}

// fitsAmount reports whether a present value fits NUMERIC(10,2).
// Missing values are left to the rules that own them.
func fitsAmount(d decimal.NullDecimal) bool {
	if !d.Valid {
		return true
	}
	return d.Decimal.Abs().Round(2).LessThan(maxAmount)
}

// fitsInteger reports whether a present value fits an INTEGER column.
func fitsInteger(d decimal.NullDecimal) bool {
	if !d.Valid {
		return true
	}
	return d.Decimal.Abs().LessThanOrEqual(maxInteger)
}

// RowValidator evaluates a contract's row rules.
type RowValidator struct {
	rules []RowRule
	now   func() time.Time
}

// NewRowValidator creates a validator for the contract's rules.
// now stamps rejections; nil uses time.Now.
func NewRowValidator(c *Contract, now func() time.Time) *RowValidator {
	if now == nil {
		now = time.Now
	}
	return &RowValidator{rules: c.RowRules, now: now}
}

// Violations returns the names of every rule r violates, in rule order.
// An empty result means the row is clean.
func (v *RowValidator) Violations(r TransformedRecord) []string {
	var reasons []string
	for _, rule := range v.rules {
		if !rule.Check(r) {
			reasons = append(reasons, rule.Name)
		}
	}
	return reasons
}

// Check returns the verdict for a single row.
func (v *RowValidator) Check(r TransformedRecord) Verdict {
	verdict := Verdict{Record: r, Reasons: v.Violations(r)}
	if !verdict.Clean() {
		verdict.RejectedAt = v.now()
	}
	return verdict
}

// Partition splits records into clean rows and rejections.
// Every input record lands in exactly one of the two results, in input order.
func (v *RowValidator) Partition(records []TransformedRecord) ([]TransformedRecord, []Rejection) {
	clean := make([]TransformedRecord, 0, len(records))
	var rejected []Rejection

	for _, r := range records {
		verdict := v.Check(r)
		if verdict.Clean() {
			clean = append(clean, r)
			continue
		}
		rejected = append(rejected, Rejection{
			Record:     r,
			Reasons:    verdict.Reasons,
			RejectedAt: verdict.RejectedAt,
		})
	}
	return clean, rejected
}

// ReasonHistogram counts each reason across rejections.
func ReasonHistogram(rejected []Rejection) map[string]int {
	counts := make(map[string]int)
	for _, r := range rejected {
		for _, reason := range r.Reasons {
			counts[reason]++
		}
	}
	return counts
}

// JoinReasons formats a reason list the way it is stored in rejected_rows.
func JoinReasons(reasons []string) string {
	return strings.Join(reasons, " | ")
}

// String describes the rejection for logs.
func (r Rejection) String() string {
	id := r.Record.TransactionID
	if id == "" {
		id = "<none>"
	}
	return fmt.Sprintf("line %d (%s): %s", r.Record.Line, id, JoinReasons(r.Reasons))
}
