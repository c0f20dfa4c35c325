package core

// transform.go maps raw rows to typed, normalized rows.
//
// Transformation is total over business data: a bad number, an unknown
// date or an empty field becomes an explicit invalid value for the row
// validator to judge. The only error is a contract violation, where a
// column the structural check confirmed is missing from the header index.

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Transformer converts RawRecords using a contract.
type Transformer struct {
	contract *Contract
	dates    *DateParser
}

// NewTransformer creates a transformer for c.
func NewTransformer(c *Contract) (*Transformer, error) {
	dates, err := NewDateParser(c.DateFormats)
	if err != nil {
		return nil, fmt.Errorf("date formats: %w", err)
	}
	return &Transformer{contract: c, dates: dates}, nil
}

// columnPositions resolves every business column in the header.
type columnPositions struct {
	transactionID, customerID, productName, quantity int
	unitPrice, transactionDate, region, status       int
}

func (t *Transformer) positions(columns []string) (columnPositions, error) {
	idx := MakeHeaderIndex(columns)

	var missing []string
	lookup := func(name string) int {
		pos, ok := idx[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return pos
	}

	p := columnPositions{
		transactionID:   lookup(ColTransactionID),
		customerID:      lookup(ColCustomerID),
		productName:     lookup(ColProductName),
		quantity:        lookup(ColQuantity),
		unitPrice:       lookup(ColUnitPrice),
		transactionDate: lookup(ColTransactionDate),
		region:          lookup(ColRegion),
		status:          lookup(ColStatus),
	}
	if len(missing) > 0 {
		return p, fmt.Errorf("%w: columns %s absent after structural check",
			ErrContractViolation, strings.Join(missing, ", "))
	}
	return p, nil
}

// Transform converts every row of table. The returned slice has exactly
// one record per input row, in input order.
func (t *Transformer) Transform(table RawTable) ([]TransformedRecord, error) {
	pos, err := t.positions(table.Columns)
	if err != nil {
		return nil, err
	}

	out := make([]TransformedRecord, len(table.Rows))
	for i, row := range table.Rows {
		out[i] = t.transformRow(table.Columns, pos, row)
	}
	return out, nil
}

func (t *Transformer) transformRow(columns []string, p columnPositions, row RawRecord) TransformedRecord {
	rec := TransformedRecord{
		Line:            row.Line,
		TransactionID:   normalizeID(row.Cell(p.transactionID)),
		CustomerID:      ParseInteger(row.Cell(p.customerID)),
		ProductName:     CleanCell(row.Cell(p.productName)),
		Quantity:        ParseDecimal(row.Cell(p.quantity)),
		UnitPrice:       ParseDecimal(row.Cell(p.unitPrice)),
		TransactionDate: t.dates.Parse(row.Cell(p.transactionDate)),
		Region:          strings.ToLower(CleanCell(row.Cell(p.region))),
		Status:          strings.ToLower(CleanCell(row.Cell(p.status))),
		Raw:             rawCells(columns, row),
	}

	if rec.Status == "" {
		rec.Status = t.contract.DefaultStatus
	}
	rec.TotalSale = TotalSale(rec.Quantity, rec.UnitPrice)

	return rec
}

// TotalSale computes quantity × unit_price rounded to cents.
// The result is invalid when either operand is.
func TotalSale(quantity, unitPrice decimal.NullDecimal) decimal.NullDecimal {
	if !quantity.Valid || !unitPrice.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{
		Decimal: quantity.Decimal.Mul(unitPrice.Decimal).Round(2),
		Valid:   true,
	}
}

func normalizeID(s string) string {
	return strings.ToUpper(CleanCell(s))
}

// rawCells copies a row keyed by header name. A repeated name gets a
// "#n" suffix from its second occurrence on, so no cell is dropped.
func rawCells(columns []string, row RawRecord) map[string]string {
	raw := make(map[string]string, len(columns))
	for i, c := range columns {
		key := c
		for n := 2; ; n++ {
			if _, taken := raw[key]; !taken {
				break
			}
			key = fmt.Sprintf("%s#%d", c, n)
		}
		raw[key] = row.Cell(i)
	}
	return raw
}
