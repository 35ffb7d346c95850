package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	xls "github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// DecodeXLSX reads the first sheet of an xlsx workbook.
//
// Cells are read as stored rather than as displayed: numbers keep full
// precision and cells carrying a date number format come back as time.Time.
// Display text would turn a short-date cell into "01-05-24", which no date
// parser can place.
func DecodeXLSX(path string) (*Grid, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	sheet := sheets[0]
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	dates := newDateStyles(f)
	g, ok := gridFromRecordsFunc(rows, func(r, c int, s string) any {
		if t, ok := dates.cellTime(sheet, r, c, s); ok {
			return t
		}
		return numericCell(s)
	})
	if !ok {
		return &Grid{}, nil
	}
	return g, nil
}

// dateStyles remembers, per style index, whether the style's number format
// renders a date or time.
type dateStyles struct {
	f        *excelize.File
	date1904 bool
	known    map[int]bool
}

func newDateStyles(f *excelize.File) *dateStyles {
	d := &dateStyles{f: f, known: map[int]bool{}}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

// cellTime converts the raw serial s at 0-based record position (r, c) when
// the cell is date-formatted.
func (d *dateStyles) cellTime(sheet string, r, c int, s string) (time.Time, bool) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || serial < 0 {
		return time.Time{}, false
	}
	cell, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return time.Time{}, false
	}
	idx, err := d.f.GetCellStyle(sheet, cell)
	if err != nil || idx == 0 {
		return time.Time{}, false
	}
	isDate, seen := d.known[idx]
	if !seen {
		if style, err := d.f.GetStyle(idx); err == nil && style != nil {
			isDate = isDateStyle(style)
		}
		d.known[idx] = isDate
	}
	if !isDate {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Built-in number format IDs that render dates or times, including the
// East Asian language variants.
func isDateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 22,
		id >= 27 && id <= 36,
		id >= 45 && id <= 47,
		id >= 50 && id <= 58:
		return true
	}
	return false
}

func isDateStyle(s *excelize.Style) bool {
	if s.CustomNumFmt != nil {
		return isDateFormatCode(*s.CustomNumFmt)
	}
	return isDateNumFmt(s.NumFmt)
}

// isDateFormatCode reports whether a custom format code has date or time
// tokens outside quoted literals, escapes and bracketed modifiers.
func isDateFormatCode(code string) bool {
	if strings.EqualFold(strings.TrimSpace(code), "general") {
		return false
	}
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case inQuote:
			inQuote = ch != '"'
		case inBracket:
			if ch == ']' {
				inBracket = false
			}
		case ch == '"':
			inQuote = true
		case ch == '[':
			// [h], [mm] and [ss] are elapsed-time tokens; [Red] and [$-409] are not.
			if j := strings.IndexByte(code[i:], ']'); j > 0 {
				inner := strings.ToLower(code[i+1 : i+j])
				if strings.Trim(inner, "hms") == "" && inner != "" {
					return true
				}
			}
			inBracket = true
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		default:
			switch ch | 0x20 {
			case 'y', 'd', 'm', 'h', 's':
				return true
			}
		}
	}
	return false
}

// DecodeXLS reads the first sheet of a legacy BIFF workbook.
func DecodeXLS(path string) (g *Grid, err error) {
	// xlsReader panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			g, err = nil, fmt.Errorf("decode xls: %v", r)
		}
	}()

	wb, err := xls.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	if wb.GetNumberSheets() == 0 {
		return nil, fmt.Errorf("xls has no sheets")
	}
	sheet, err := wb.GetSheet(0)
	if err != nil {
		return nil, fmt.Errorf("read first sheet: %w", err)
	}

	var records [][]string
	for r := 0; r <= sheet.GetNumberRows(); r++ {
		row, err := sheet.GetRow(r)
		if err != nil {
			continue
		}
		cols := row.GetCols()
		rec := make([]string, len(cols))
		for c, cell := range cols {
			rec[c] = toUTF8(cell.GetString())
		}
		records = append(records, rec)
	}
	return gridOrEmpty(records), nil
}

// gridOrEmpty returns an empty grid when the sheet has no non-blank row.
func gridOrEmpty(records [][]string) *Grid {
	if g, ok := gridFromRecords(records); ok {
		return g
	}
	return &Grid{}
}

// toUTF8 decodes legacy Windows-1252 strings; valid UTF-8 passes through.
func toUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	decoded, err := charmap.Windows1252.NewDecoder().String(s)
	if err != nil {
		return strings.ToValidUTF8(s, "�")
	}
	return decoded
}
