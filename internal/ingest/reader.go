// Package ingest reads sales exports from disk or upload streams into
// core.RawTable values.
//
// CSV and XLSX are supported. CSV bytes are decoded as UTF-8 when valid and
// as ISO-8859-1 otherwise, after any UTF-8 BOM is stripped. Cell values are
// returned untyped; all interpretation happens in the core.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/salesload/internal/core"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// Format identifies a supported file layout.
type Format int

const (
	FormatCSV Format = iota
	FormatXLSX
)

// DefaultMaxFileSize bounds how much a single read loads into memory.
const DefaultMaxFileSize = 100 << 20

var errTooLarge = errors.New("file exceeds size limit")

// Reader loads tabular files. The zero value is ready to use.
type Reader struct {
	// MaxFileSize caps the bytes read per file; 0 uses DefaultMaxFileSize.
	MaxFileSize int64
}

// FormatFor picks a format from a file name's extension.
// Anything that is not a workbook is read as CSV.
func FormatFor(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// ReadFile implements core.TableReader.
//
// A missing or unreadable path is reported as core.InputUnavailable so the
// caller can retry later; bytes that do not form a table are reported as
// core.InputCorrupt.
func (r Reader) ReadFile(ctx context.Context, path string) (core.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return core.RawTable{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return core.RawTable{}, unavailable(path, err)
	}
	if info.IsDir() {
		return core.RawTable{}, corrupt(path, errors.New("path is a directory"))
	}

	f, err := os.Open(path)
	if err != nil {
		return core.RawTable{}, unavailable(path, err)
	}
	defer f.Close()

	return r.Decode(ctx, f, path)
}

// Decode parses src as a table. name labels the result and selects the
// format by extension. Every failure is an *core.InputError of kind
// InputCorrupt.
func (r Reader) Decode(ctx context.Context, src io.Reader, name string) (core.RawTable, error) {
	data, err := r.readAll(src)
	if err != nil {
		return core.RawTable{}, corrupt(name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return core.RawTable{}, corrupt(name, errors.New("file is empty"))
	}
	if err := ctx.Err(); err != nil {
		return core.RawTable{}, err
	}

	var records []record
	switch FormatFor(name) {
	case FormatXLSX:
		records, err = parseXLSX(data)
	default:
		records, err = parseCSV(data)
	}
	if err != nil {
		return core.RawTable{}, corrupt(name, err)
	}

	table, err := buildTable(name, records)
	if err != nil {
		return core.RawTable{}, corrupt(name, err)
	}
	return table, nil
}

func (r Reader) readAll(src io.Reader) ([]byte, error) {
	limit := r.MaxFileSize
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}

	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", errTooLarge, limit)
	}
	return data, nil
}

// record is one parsed row with its 1-indexed source line.
type record struct {
	line  int
	cells []string
}

// buildTable takes the first non-blank record as the header and the rest
// as data rows. Blank rows are skipped. A row wider than the header is
// corrupt; a narrower row reads as empty trailing cells.
func buildTable(name string, records []record) (core.RawTable, error) {
	table := core.RawTable{Source: name}

	i := 0
	for i < len(records) && isEmptyRow(records[i].cells) {
		i++
	}
	if i == len(records) {
		return table, errors.New("no header row")
	}
	table.Columns = records[i].cells

	for _, rec := range records[i+1:] {
		if isEmptyRow(rec.cells) {
			continue
		}
		if len(rec.cells) > len(table.Columns) && !isEmptyRow(rec.cells[len(table.Columns):]) {
			return table, fmt.Errorf("line %d has %d fields, header has %d",
				rec.line, len(rec.cells), len(table.Columns))
		}
		table.Rows = append(table.Rows, core.RawRecord{Line: rec.line, Cells: rec.cells})
	}
	return table, nil
}

// utf8BOM is written by Excel and other Windows tools ahead of CSV text.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText strips a UTF-8 BOM and returns the bytes as UTF-8,
// falling back to ISO-8859-1 when they are not valid UTF-8.
func decodeText(data []byte) ([]byte, error) {
	stripped := bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(stripped) {
		return stripped, nil
	}
	return charmap.ISO8859_1.NewDecoder().Bytes(stripped)
}

func parseCSV(data []byte) ([]record, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records []record
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, record{line: line, cells: cells})
	}
	return records, nil
}

func parseXLSX(data []byte) ([]record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	records := make([]record, len(rows))
	for i, row := range rows {
		records[i] = record{line: i + 1, cells: row}
	}
	return records, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func unavailable(path string, err error) error {
	return &core.InputError{Kind: core.InputUnavailable, Path: path, Err: err}
}

func corrupt(path string, err error) error {
	return &core.InputError{Kind: core.InputCorrupt, Path: path, Err: err}
}

// IsNotExist reports whether err is an unavailable-input error caused by a
// missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, core.ErrInputUnavailable) && errors.Is(err, fs.ErrNotExist)
}
