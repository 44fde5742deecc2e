package table

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/saofleet/reconciler/internal/timeparse"
)

// readXLSX decodes the first sheet. Cells formatted as dates are rendered with
// timeparse.Format so they go through the same normalizer as text cells.
func readXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("empty sheet: no header row")
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	t := &Table{Columns: rows[0]}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		for j, cell := range row {
			if i >= len(raw) || j >= len(raw[i]) || raw[i][j] == cell {
				continue
			}
			if text, ok := dateCell(f, sheet, i, j, raw[i][j]); ok {
				row[j] = text
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// dateCell converts a serial date value when the cell carries a date format.
func dateCell(f *excelize.File, sheet string, row, col int, raw string) (string, bool) {
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", false
	}
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return "", false
	}
	styleID, err := f.GetCellStyle(sheet, axis)
	if err != nil {
		return "", false
	}
	style, err := f.GetStyle(styleID)
	if err != nil || !isDateStyle(style) {
		return "", false
	}
	ts, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return "", false
	}
	return timeparse.Format(ts), true
}

// isDateStyle reports whether a cell style renders a calendar date. Built-in
// formats 14-22 are the date and time formats; custom codes qualify when they
// carry a day or year token. Elapsed-time formats ([h]:mm, mm:ss) hold
// durations and keep their formatted text.
func isDateStyle(s *excelize.Style) bool {
	if s == nil {
		return false
	}
	if s.CustomNumFmt != nil {
		return strings.ContainsAny(dateTokens(*s.CustomNumFmt), "dy")
	}
	return s.NumFmt >= 14 && s.NumFmt <= 22
}

// dateTokens lowercases a number format code and drops its bracketed
// sections, quoted literals and escaped characters.
func dateTokens(code string) string {
	var b strings.Builder
	var bracket, quoted, escaped bool
	for _, r := range strings.ToLower(code) {
		switch {
		case escaped:
			escaped = false
		case quoted:
			quoted = r != '"'
		case bracket:
			bracket = r != ']'
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = true
		case r == '[':
			bracket = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func writeXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}

	if err := sw.SetRow("A1", cells(t.Columns)); err != nil {
		return err
	}
	for i, row := range t.Rows {
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, cells(row)); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func cells(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
