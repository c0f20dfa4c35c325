package core

// convert.go provides cell conversion for untyped CSV/XLSX values.
//
// These functions handle the messy reality of exported spreadsheets:
//   - Excel formula prefixes (="value") and stray quotes
//   - Currency symbols and thousand separators in numbers
//   - Accounting negatives "(12.50)"
//   - Several date layouts, tried in a fixed order
//
// Invalid input never produces an error here; callers get an explicit
// invalid marker (Valid=false) instead.

import (
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// numericRegex validates that a string is a plain decimal after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Bounds on parsed decimals. Rounding rescales the coefficient by
// 10^|exponent|, so an unchecked "1e2000000000" would never finish.
const (
	maxDecimalExponent = 28
	maxDecimalDigits   = 38
)

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// NormalizeColumn returns the comparison form of a column name:
// cleaned of CSV artifacts, trimmed and lower-cased.
func NormalizeColumn(name string) string {
	return strings.ToLower(CleanCell(name))
}

// HeaderIndex maps normalized column names to their position in a row.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a column list.
// The first occurrence of a duplicated name wins. columns is not modified.
func MakeHeaderIndex(columns []string) HeaderIndex {
	idx := make(HeaderIndex, len(columns))
	for i, c := range columns {
		key := NormalizeColumn(c)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// ParseDecimal converts a cell to an exact decimal.
// Handles currency symbols, thousands separators, and accounting format.
// Values with more than 38 significant digits or an exponent beyond ±28
// are invalid.
func ParseDecimal(s string) decimal.NullDecimal {
	s = CleanCell(s)
	if s == "" {
		return decimal.NullDecimal{}
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	if exp := d.Exponent(); exp > maxDecimalExponent || exp < -maxDecimalExponent {
		return decimal.NullDecimal{}
	}
	if d.NumDigits() > maxDecimalDigits {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// ParseInteger converts a cell to a whole number.
// "1042" and "1042.0" are accepted; "10.5" is not.
func ParseInteger(s string) sql.NullInt64 {
	d := ParseDecimal(s)
	if !d.Valid || !d.Decimal.IsInteger() {
		return sql.NullInt64{}
	}
	if d.Decimal.Abs().GreaterThan(decimal.NewFromInt32(1<<31 - 1)) {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: d.Decimal.IntPart(), Valid: true}
}

// DateParser resolves date strings against an ordered list of formats.
type DateParser struct {
	formats []string
	layouts []string
}

// NewDateParser compiles strftime formats into Go layouts.
func NewDateParser(formats []string) (*DateParser, error) {
	p := &DateParser{
		formats: formats,
		layouts: make([]string, len(formats)),
	}
	for i, f := range formats {
		layout, err := goLayout(f)
		if err != nil {
			return nil, err
		}
		p.layouts[i] = layout
	}
	return p, nil
}

// Parse tries each format in declared order and returns the first match.
// When nothing matches the result is invalid; no format is inferred.
func (p *DateParser) Parse(raw string) ResolvedDate {
	s := CleanCell(raw)
	out := ResolvedDate{Raw: raw}
	if s == "" {
		return out
	}

	for i, layout := range p.layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			out.Time = t
			out.Format = p.formats[i]
			out.Valid = true
			return out
		}
	}
	return out
}
