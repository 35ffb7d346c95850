// Package extract turns a sniffed export into a Grid: a header row plus
// positional data rows.
package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Row is one data row. ID is its 1-based position among the data rows kept
// from the source table and stays attached to the row through every later
// projection.
type Row struct {
	ID    int
	Cells []any
}

// Grid is a rectangular view of the winning table. Cells align with Headers;
// a missing trailing cell is nil.
type Grid struct {
	Headers []string
	Rows    []Row
}

// NewGrid starts a grid with the given header row.
func NewGrid(headers []string) *Grid {
	hs := make([]string, len(headers))
	for i, h := range headers {
		hs[i] = strings.TrimSpace(h)
	}
	return &Grid{Headers: hs}
}

// Append adds a data row. Cells beyond the header width are ignored, short
// rows are padded with nil, and a row whose cells are all blank is dropped.
// It reports whether the row was kept.
func (g *Grid) Append(cells []any) bool {
	row := make([]any, len(g.Headers))
	copy(row, cells)

	blank := true
	for _, c := range row {
		if !IsBlank(c) {
			blank = false
			break
		}
	}
	if blank {
		return false
	}

	g.Rows = append(g.Rows, Row{ID: len(g.Rows) + 1, Cells: row})
	return true
}

// Width is the header count.
func (g *Grid) Width() int { return len(g.Headers) }

// IsBlank reports whether a cell carries no value: nil, an empty or
// whitespace-only string, or NaN.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case float64:
		return math.IsNaN(t)
	case time.Time:
		return t.IsZero()
	default:
		return strings.TrimSpace(fmt.Sprint(v)) == ""
	}
}

// numericCell converts s to float64 when it is a plain decimal number.
//
// Strings with a leading zero before other digits ("00123") are kept as text
// so identifiers are not mangled; so are values strconv would accept but a
// spreadsheet would not show as numbers (hex, "Inf", "NaN", underscores).
func numericCell(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	if !isPlainNumber(t) {
		return s
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsInf(f, 0) {
		return s
	}
	return f
}

func isPlainNumber(s string) bool {
	i := 0
	if s[0] == '-' {
		i++
	}
	if i >= len(s) {
		return false
	}
	digits := s[i:]
	if len(digits) > 1 && digits[0] == '0' && digits[1] != '.' {
		return false
	}

	seenDigit, seenDot, seenExp := false, false, false
	for j := i; j < len(s); j++ {
		c := s[j]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
			seenDigit = false
			if j+1 < len(s) && (s[j+1] == '+' || s[j+1] == '-') {
				j++
			}
		default:
			return false
		}
	}
	return seenDigit
}

// gridFromRecords builds a grid from string records: the first non-blank
// record is the header row, blank records are dropped and numeric-looking
// cells become float64.
func gridFromRecords(records [][]string) (*Grid, bool) {
	return gridFromRecordsFunc(records, func(_, _ int, s string) any { return numericCell(s) })
}

// gridFromRecordsFunc is gridFromRecords with a caller-supplied conversion
// for data cells. r and c are positions in records.
func gridFromRecordsFunc(records [][]string, cell func(r, c int, s string) any) (*Grid, bool) {
	start := -1
	for i, rec := range records {
		if !blankRecord(rec) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, false
	}

	g := NewGrid(records[start])
	for r := start + 1; r < len(records); r++ {
		rec := records[r]
		cells := make([]any, len(rec))
		for c, s := range rec {
			if strings.TrimSpace(s) == "" {
				continue
			}
			cells[c] = cell(r, c, s)
		}
		g.Append(cells)
	}
	return g, true
}

func blankRecord(rec []string) bool {
	for _, s := range rec {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}
