package core

// contract.go declares the schema contract every run is checked against:
// required columns, column types, accepted date formats, the status enum
// and the ordered row rules.

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Column names used by the sales export.
const (
	ColTransactionID   = "transaction_id"
	ColCustomerID      = "customer_id"
	ColProductName     = "product_name"
	ColQuantity        = "quantity"
	ColUnitPrice       = "unit_price"
	ColTransactionDate = "transaction_date"
	ColRegion          = "region"
	ColStatus          = "status"
)

// businessColumns are read by the Transformer and must stay required.
var businessColumns = []string{
	ColTransactionID,
	ColCustomerID,
	ColProductName,
	ColQuantity,
	ColUnitPrice,
	ColTransactionDate,
	ColRegion,
	ColStatus,
}

// DefaultDateFormats are tried in order; the first match wins.
var DefaultDateFormats = []string{"%Y-%m-%d", "%d/%m/%Y", "%b %d %Y"}

// DefaultStatusEnum is the allowed set of status values.
var DefaultStatusEnum = []string{"completed", "pending", "cancelled", "unknown"}

// DefaultStatus replaces an empty status.
const DefaultStatus = "unknown"

// RowRule is a named predicate over a transformed row.
// Check returns true when the row satisfies the rule.
type RowRule struct {
	Name  string
	Check func(TransformedRecord) bool
}

// Contract is the static schema declaration for one input layout.
// Treat a Contract as immutable once a run has started.
type Contract struct {
	RequiredColumns []string
	ColumnTypes     map[string]FieldType
	DateFormats     []string
	StatusEnum      []string
	DefaultStatus   string
	RowRules        []RowRule
}

// DefaultContract returns the contract for the sales transaction export.
func DefaultContract() *Contract {
	c := &Contract{
		RequiredColumns: slices.Clone(businessColumns),
		ColumnTypes: map[string]FieldType{
			ColTransactionID:   FieldText,
			ColCustomerID:      FieldInteger,
			ColProductName:     FieldText,
			ColQuantity:        FieldNumeric,
			ColUnitPrice:       FieldNumeric,
			ColTransactionDate: FieldDate,
			ColRegion:          FieldText,
			ColStatus:          FieldEnum,
		},
		DateFormats:   slices.Clone(DefaultDateFormats),
		StatusEnum:    slices.Clone(DefaultStatusEnum),
		DefaultStatus: DefaultStatus,
	}
	c.RowRules = DefaultRowRules(c)
	return c
}

// AllowsStatus reports whether status is in the contract's enum.
func (c *Contract) AllowsStatus(status string) bool {
	return slices.Contains(c.StatusEnum, status)
}

// Validate checks the contract for internal consistency.
func (c *Contract) Validate() error {
	var errs []string

	required := make(map[string]bool, len(c.RequiredColumns))
	for _, col := range c.RequiredColumns {
		required[NormalizeColumn(col)] = true
	}
	for _, col := range businessColumns {
		if !required[col] {
			errs = append(errs, fmt.Sprintf("required_columns must include %q", col))
		}
	}
	if len(c.DateFormats) == 0 {
		errs = append(errs, "date_formats must not be empty")
	}
	for _, f := range c.DateFormats {
		if _, err := goLayout(f); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(c.StatusEnum) == 0 {
		errs = append(errs, "status_enum must not be empty")
	}
	if c.DefaultStatus == "" {
		errs = append(errs, "default_status must not be empty")
	} else if !c.AllowsStatus(c.DefaultStatus) {
		errs = append(errs, fmt.Sprintf("default_status %q is not in status_enum", c.DefaultStatus))
	}
	if len(c.RowRules) == 0 {
		errs = append(errs, "row rules must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid contract:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// contractFile is the YAML shape accepted by LoadContract.
// Omitted keys keep the default contract's values.
type contractFile struct {
	RequiredColumns []string `yaml:"required_columns"`
	DateFormats     []string `yaml:"date_formats"`
	StatusEnum      []string `yaml:"status_enum"`
	DefaultStatus   string   `yaml:"default_status"`
}

// LoadContract reads YAML overrides from path on top of DefaultContract.
// An empty path returns the default contract. Date formats may hold only
// strftime directives and punctuation.
func LoadContract(path string) (*Contract, error) {
	c := DefaultContract()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contract %s: %w", path, err)
	}

	var f contractFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse contract %s: %w", path, err)
	}

	if len(f.RequiredColumns) > 0 {
		c.RequiredColumns = f.RequiredColumns
	}
	if len(f.DateFormats) > 0 {
		c.DateFormats = f.DateFormats
	}
	if len(f.StatusEnum) > 0 {
		c.StatusEnum = lowerAll(f.StatusEnum)
	}
	if f.DefaultStatus != "" {
		c.DefaultStatus = strings.ToLower(strings.TrimSpace(f.DefaultStatus))
	}
	c.RowRules = DefaultRowRules(c)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

// errBadFormat is returned for unsupported strftime directives.
var errBadFormat = errors.New("unsupported date directive")

// goLayout translates a strftime pattern to a Go time layout.
// %d and %m accept one or two digits, matching strptime.
// Literal ASCII letters, digits and '_' are rejected: Go would read text
// such as "Jan", "PM" or "1" as layout elements.
func goLayout(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			if isLayoutChar(ch) {
				return "", fmt.Errorf("%w: literal %q in %q", errBadFormat, ch, format)
			}
			b.WriteByte(ch)
			continue
		}
		if i+1 >= len(format) {
			return "", fmt.Errorf("%w: trailing %% in %q", errBadFormat, format)
		}
		i++
		switch format[i] {
		case 'Y':
			b.WriteString("2006")
		case 'y':
			b.WriteString("06")
		case 'm':
			b.WriteString("1")
		case 'd':
			b.WriteString("2")
		case 'b':
			b.WriteString("Jan")
		case 'B':
			b.WriteString("January")
		case 'H':
			b.WriteString("15")
		case 'M':
			b.WriteString("04")
		case 'S':
			b.WriteString("05")
		case '%':
			b.WriteByte('%')
		default:
			return "", fmt.Errorf("%w %%%c in %q", errBadFormat, format[i], format)
		}
	}
	return b.String(), nil
}

func isLayoutChar(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '_'
}
