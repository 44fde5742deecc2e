// Package table holds the decoded tabular datasets the reconciler works on and
// the codecs (CSV and XLSX) that read and write them.
package table

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrMissingColumn is returned when a required column is absent from the header.
	ErrMissingColumn = errors.New("missing column")

	// ErrUnsupportedFormat is returned for file extensions with no codec.
	ErrUnsupportedFormat = errors.New("unsupported table format")
)

// Format names a codec.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Table is a header row plus data rows of text cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Index returns the position of the named column.
func (t *Table) Index(name string) (int, error) {
	for i, c := range t.Columns {
		if c == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w %q", ErrMissingColumn, name)
}

// Cell returns the value at row/col, or "" when the row is shorter than the header.
func (t *Table) Cell(row, col int) string {
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// FormatFromPath picks a codec from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// ParseFormat validates a format name from configuration.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string { return "." + string(f) }

// Read decodes a table from r.
func Read(r io.Reader, format Format) (*Table, error) {
	switch format {
	case FormatCSV:
		return readCSV(r)
	case FormatXLSX:
		return readXLSX(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Write encodes t to w.
func Write(w io.Writer, format Format, t *Table) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, t)
	case FormatXLSX:
		return writeXLSX(w, t)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// ReadFile decodes the file at path using the codec matching its extension.
func ReadFile(path string) (*Table, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f, format)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// WriteFile encodes t into path using the codec matching its extension.
func WriteFile(path string, t *Table) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, format, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
