package extracthtml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"posimport/internal/extract"
)

// TokenizerStrategy scans the token stream without building a DOM. It
// tolerates markup the DOM parser rejects, at the price of not keeping
// hyperlink targets.
type TokenizerStrategy struct{}

func (TokenizerStrategy) Name() string { return "tokenizer" }

func (TokenizerStrategy) Extract(ctx context.Context, b []byte, expected map[string]struct{}) (*extract.Grid, error) {
	tables, err := scanTables(documentReader(b))
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: document has no <table> elements", extract.ErrNoTable)
	}

	cands := make([]extract.Candidate, len(tables))
	for i, t := range tables {
		var hs []string
		if len(t.rows) > 0 {
			hs = t.rows[0]
		}
		cands[i] = extract.Candidate{Index: i, Headers: hs}
	}
	best, _, _ := extract.SelectTable(cands, expected)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := tables[best]
	if len(t.rows) == 0 {
		return nil, fmt.Errorf("%w: selected table has no rows", extract.ErrNoTable)
	}

	g := extract.NewGrid(t.rows[0])
	for _, r := range t.rows[1:] {
		if len(r) == 0 {
			continue
		}
		vals := make([]any, len(r))
		for i, s := range r {
			vals[i] = s
		}
		g.Append(vals)
	}
	if len(g.Rows) == 0 {
		return nil, fmt.Errorf("%w: selected table contains no data rows", extract.ErrNoTable)
	}
	return g, nil
}

type scannedTable struct {
	rows  [][]string
	row   []string
	inRow bool
	cell  *strings.Builder
}

func (t *scannedTable) openRow() {
	t.closeRow()
	t.row = []string{}
	t.inRow = true
}

func (t *scannedTable) openCell() {
	if !t.inRow {
		t.openRow()
	}
	t.closeCell()
	t.cell = &strings.Builder{}
}

func (t *scannedTable) closeCell() {
	if t.cell == nil {
		return
	}
	t.row = append(t.row, t.cell.String())
	t.cell = nil
}

func (t *scannedTable) closeRow() {
	t.closeCell()
	if t.inRow {
		t.rows = append(t.rows, t.row)
	}
	t.row = nil
	t.inRow = false
}

func (t *scannedTable) text(s string) {
	if t.cell == nil {
		return
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if t.cell.Len() > 0 {
		t.cell.WriteByte(' ')
	}
	t.cell.WriteString(s)
}

// scanTables returns every table in document order. Nested tables are
// collected separately; their text does not leak into the enclosing cell.
func scanTables(r io.Reader) ([]*scannedTable, error) {
	z := html.NewTokenizer(r)

	var all, stack []*scannedTable
	top := func() *scannedTable {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				for _, t := range stack {
					t.closeRow()
				}
				return all, nil
			}
			return nil, fmt.Errorf("tokenize html: %w", z.Err())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "table":
				t := &scannedTable{}
				all = append(all, t)
				stack = append(stack, t)
			case "tr":
				if t := top(); t != nil {
					t.openRow()
				}
			case "td", "th":
				if t := top(); t != nil {
					t.openCell()
				}
			case "script", "style":
				skip++
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "table":
				if t := top(); t != nil {
					t.closeRow()
					stack = stack[:len(stack)-1]
				}
			case "tr":
				if t := top(); t != nil {
					t.closeRow()
				}
			case "td", "th":
				if t := top(); t != nil {
					t.closeCell()
				}
			case "script", "style":
				if skip > 0 {
					skip--
				}
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			if t := top(); t != nil {
				t.text(string(z.Text()))
			}
		}
	}
}
