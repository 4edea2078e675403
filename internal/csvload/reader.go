package csvload

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMissingFile is wrapped by errors for input files that do not exist.
var ErrMissingFile = errors.New("input file not found")

// utf8BOM is stripped from the start of the header row.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RowError reports an input row that cannot be loaded.
type RowError struct {
	File   string
	Line   int
	Column string
	Msg    string
}

func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s:%d: column %s: %s", e.File, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// headerIndex maps lowercased column names to their position.
type headerIndex map[string]int

// row is one data row with its 1-based line number in the file.
type row struct {
	file   string
	line   int
	fields []string
	idx    headerIndex
}

// get returns the cleaned value of column name, or "" when the column is
// absent from the file or the row is short.
func (r row) get(name string) string {
	pos, ok := r.idx[name]
	if !ok || pos >= len(r.fields) {
		return ""
	}
	return cleanCell(r.fields[pos])
}

func (r row) errorf(column, format string, args ...any) *RowError {
	return &RowError{File: r.file, Line: r.line, Column: column, Msg: fmt.Sprintf(format, args...)}
}

// readFile reads a CSV file with a header row. Every column in required
// must be present in the header.
func readFile(path string, required []string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return readCSV(path, f, required)
}

func readCSV(name string, r io.Reader, required []string) ([]row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &RowError{File: name, Line: 1, Msg: "file is empty"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", name, err)
	}

	idx := make(headerIndex, len(header))
	for i, h := range header {
		if i == 0 {
			h = string(bytes.TrimPrefix([]byte(h), utf8BOM))
		}
		idx[strings.ToLower(cleanCell(h))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, &RowError{File: name, Line: 1, Column: col, Msg: "required column missing"}
		}
	}

	var rows []row
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		line, _ := cr.FieldPos(0)
		if isBlank(fields) {
			continue
		}
		rows = append(rows, row{file: name, line: line, fields: fields, idx: idx})
	}
	return rows, nil
}

// cleanCell trims whitespace and a surrounding pair of quotes left by
// spreadsheet exports.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// isNull reports whether a cell denotes a missing value. pandas writes
// NaN for empty numeric cells, which the original exports contain.
func isNull(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "null", "none":
		return true
	}
	return false
}

// parseAmount parses a monetary value. Empty or unparseable values yield an
// invalid NullDecimal; whether that is acceptable is for validation to say.
func parseAmount(s string) decimal.NullDecimal {
	if isNull(s) {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// parseInt parses an integer, also accepting integral decimals such as
// "3.0". ok is false for an empty cell.
func parseInt(s string) (v int64, ok bool, err error) {
	if isNull(s) {
		return 0, false, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true, nil
	}
	d, derr := decimal.NewFromString(s)
	if derr != nil || !d.IsInteger() {
		return 0, false, fmt.Errorf("not an integer: %q", s)
	}
	return d.IntPart(), true, nil
}

// optionalText maps null markers to "".
func optionalText(s string) string {
	if isNull(s) {
		return ""
	}
	return s
}
