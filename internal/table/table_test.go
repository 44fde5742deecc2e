package table

import (
	"bytes"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/saofleet/reconciler/internal/timeparse"
)

func sample() *Table {
	return &Table{
		Columns: []string{"Equipo", "Fecha Uso", "Conductor"},
		Rows: [][]string{
			{"SAO001", "01/09/2024 10:00", "Ana"},
			{"SAO002", "01/09/2024 20:00:00", "Luis"},
		},
	}
}

func TestIndex(t *testing.T) {
	tbl := sample()

	i, err := tbl.Index("Fecha Uso")
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	_, err = tbl.Index("Vehículos")
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), "Vehículos")
}

func TestCellShortRow(t *testing.T) {
	tbl := &Table{Columns: []string{"a", "b"}, Rows: [][]string{{"x"}}}
	assert.Equal(t, "x", tbl.Cell(0, 0))
	assert.Equal(t, "", tbl.Cell(0, 1))
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"usos.csv", FormatCSV, false},
		{"servicios.XLSX", FormatXLSX, false},
		{"/tmp/a/b.xlsm", FormatXLSX, false},
		{"legacy.xls", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnsupportedFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadCSVStripsBOM(t *testing.T) {
	in := "\uFEFFEquipo,Fecha Uso\nSAO001,01/09/2024 10:00\nSAO002\n"
	tbl, err := Read(strings.NewReader(in), FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, []string{"Equipo", "Fecha Uso"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "", tbl.Cell(1, 1))
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := Read(strings.NewReader(""), FormatCSV)
	assert.Error(t, err)
}

func TestXLSXPreservesCells(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sample()))

	got, err := Read(&buf, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, sample(), got)
}

// dateWorkbook writes one header row and one data row whose cells hold
// values styled with the given number formats.
func dateWorkbook(t *testing.T, values []any, styles []excelize.Style) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i := range values {
		head, err := excelize.CoordinatesToCellName(i+1, 1)
		require.NoError(t, err)
		cell, err := excelize.CoordinatesToCellName(i+1, 2)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(sheet, head, "col"+strconv.Itoa(i)))
		require.NoError(t, f.SetCellValue(sheet, cell, values[i]))

		style, err := f.NewStyle(&styles[i])
		require.NoError(t, err)
		require.NoError(t, f.SetCellStyle(sheet, cell, cell, style))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestXLSXDateCells(t *testing.T) {
	custom := "dd/mm/yyyy hh:mm"
	at := time.Date(2024, 9, 1, 22, 37, 0, 0, time.UTC)
	values := []any{at, at, at}
	styles := []excelize.Style{{NumFmt: 14}, {NumFmt: 22}, {CustomNumFmt: &custom}}

	got, err := Read(dateWorkbook(t, values, styles), FormatXLSX)
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)

	// The stored value is read back in full even when the format hides the time.
	for i, cell := range got.Rows[0] {
		ts, ok := timeparse.Parse(cell)
		require.True(t, ok, "cell %d = %q", i, cell)
		assert.True(t, at.Equal(ts), "cell %d = %v, want %v", i, ts, at)
	}
}

func TestXLSXElapsedTimeCellsKeepText(t *testing.T) {
	elapsed := "[h]:mm"
	tagged := `[Red]0.00 "d"`
	values := []any{1.5, 1.5, 1.5}
	styles := []excelize.Style{{NumFmt: 46}, {CustomNumFmt: &elapsed}, {CustomNumFmt: &tagged}}

	got, err := Read(dateWorkbook(t, values, styles), FormatXLSX)
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)

	for i, cell := range got.Rows[0] {
		assert.NotContains(t, cell, "1899", "cell %d", i)
		assert.NotContains(t, cell, "1900", "cell %d", i)
		_, ok := timeparse.Parse(cell)
		assert.False(t, ok, "cell %d = %q should not read as a date", i, cell)
	}
}

func TestIsDateStyle(t *testing.T) {
	code := func(s string) *string { return &s }
	tests := []struct {
		name  string
		style *excelize.Style
		want  bool
	}{
		{"nil", nil, false},
		{"general", &excelize.Style{}, false},
		{"short date", &excelize.Style{NumFmt: 14}, true},
		{"date time", &excelize.Style{NumFmt: 22}, true},
		{"minutes seconds", &excelize.Style{NumFmt: 45}, false},
		{"elapsed hours", &excelize.Style{NumFmt: 46}, false},
		{"custom date", &excelize.Style{CustomNumFmt: code("dd/mm/yyyy hh:mm")}, true},
		{"custom year month", &excelize.Style{CustomNumFmt: code("yyyy-mm")}, true},
		{"custom elapsed", &excelize.Style{CustomNumFmt: code("[h]:mm")}, false},
		{"custom clock", &excelize.Style{CustomNumFmt: code("hh:mm")}, false},
		{"colour tag", &excelize.Style{CustomNumFmt: code("[Red]0.00")}, false},
		{"quoted literal", &excelize.Style{CustomNumFmt: code(`0 "days"`)}, false},
		{"escaped literal", &excelize.Style{CustomNumFmt: code(`0\d`)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDateStyle(tt.style))
		})
	}
}

func TestWriteFileReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteFile(path, sample()))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sample(), got)
}
