// Package sheet reads and writes the spreadsheets exchanged with users: xlsx
// workbooks for bulk pricing and import, and csv exports for import.
package sheet

import (
	"bytes"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Options selects what part of a file to read.
type Options struct {
	SheetName string // xlsx sheet to read; empty reads the first sheet
	SkipRows  int    // leading rows dropped before the header
	Delimiter rune   // csv field separator; zero means ','
}

// ReadXLSX reads one sheet of the workbook at path as string rows.
func ReadXLSX(path string, opts Options) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	return readSheet(f, opts)
}

// ReadXLSXBytes reads one sheet of an in-memory workbook, such as an upload.
func ReadXLSXBytes(data []byte, opts Options) ([][]string, error) {
	if len(data) == 0 {
		return nil, eris.New("xlsx: empty workbook")
	}
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}
	return readSheet(f, opts)
}

func readSheet(f *xlsx.File, opts Options) ([][]string, error) {
	sheet, err := getSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		rows = append(rows, rowToStrings(row, f.Date1904))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row, date1904 bool) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cellText(cell, date1904)
	}
	return cells
}

// cellText renders date-formatted numeric cells as ISO dates, or date and
// time when the cell carries a time of day. Other cells use their
// formatted value.
func cellText(cell *xlsx.Cell, date1904 bool) string {
	if cell.Type() == xlsx.CellTypeNumeric && cell.IsTime() {
		if t, err := cell.GetTime(date1904); err == nil {
			t = t.Round(time.Second)
			if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
				return t.Format(time.DateOnly)
			}
			return t.Format(time.DateTime)
		}
	}
	return cell.String()
}

// Cell returns row[i], or "" when the row is shorter.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Workbook builds an xlsx file row by row.
type Workbook struct {
	f *xlsx.File
}

// NewWorkbook returns an empty workbook.
func NewWorkbook() *Workbook {
	return &Workbook{f: xlsx.NewFile()}
}

// Sheet is a writable worksheet.
type Sheet struct {
	s *xlsx.Sheet
}

// AddSheet appends a worksheet named name.
func (w *Workbook) AddSheet(name string) (*Sheet, error) {
	s, err := w.f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: add sheet %q", name)
	}
	return &Sheet{s: s}, nil
}

// AddRow appends one row. Strings are written as text, numbers as numbers
// and nil as an empty cell.
func (s *Sheet) AddRow(values ...any) {
	row := s.s.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		switch x := v.(type) {
		case nil:
		case string:
			cell.SetString(x)
		case int:
			cell.SetInt(x)
		case float64:
			cell.SetFloat(x)
		case Money:
			cell.SetFloatWithFormat(float64(x), moneyFormat)
		default:
			cell.SetValue(x)
		}
	}
}

// Money is a currency amount rendered with two decimals.
type Money float64

const moneyFormat = "#,##0.00"

// Bytes serializes the workbook.
func (w *Workbook) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := w.f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "xlsx: write workbook")
	}
	return buf.Bytes(), nil
}
