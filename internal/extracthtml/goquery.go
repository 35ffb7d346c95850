package extracthtml

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"posimport/internal/extract"
)

// GoqueryStrategy parses the document into a DOM, picks the table whose
// first row best matches the expected headers and keeps hyperlink targets.
type GoqueryStrategy struct{}

func (GoqueryStrategy) Name() string { return "goquery" }

func (GoqueryStrategy) Extract(ctx context.Context, b []byte, expected map[string]struct{}) (*extract.Grid, error) {
	doc, err := goquery.NewDocumentFromReader(documentReader(b))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		return nil, fmt.Errorf("%w: document has no <table> elements", extract.ErrNoTable)
	}

	cands := candidates(tables)
	best, _, _ := extract.SelectTable(cands, expected)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := tables.Eq(best).Find("tr")
	if rows.Length() == 0 {
		return nil, fmt.Errorf("%w: selected table has no rows", extract.ErrNoTable)
	}

	g := extract.NewGrid(cands[best].Headers)
	rows.Slice(1, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td, th")
		if cells.Length() == 0 {
			return
		}
		vals := make([]any, 0, g.Width())
		cells.EachWithBreak(func(i int, c *goquery.Selection) bool {
			if i >= g.Width() {
				return false
			}
			vals = append(vals, cellValue(c))
			return true
		})
		g.Append(vals)
	})

	if len(g.Rows) == 0 {
		return nil, fmt.Errorf("%w: selected table contains no data rows", extract.ErrNoTable)
	}
	return g, nil
}

func candidates(tables *goquery.Selection) []extract.Candidate {
	out := make([]extract.Candidate, 0, tables.Length())
	tables.Each(func(i int, t *goquery.Selection) {
		out = append(out, extract.Candidate{Index: i, Headers: headerTexts(t)})
	})
	return out
}

func headerTexts(table *goquery.Selection) []string {
	var hs []string
	table.Find("tr").First().Find("th, td").Each(func(_ int, c *goquery.Selection) {
		hs = append(hs, selectionText(c))
	})
	return hs
}

func cellValue(c *goquery.Selection) any {
	text := selectionText(c)
	if href, ok := c.Find("a").First().Attr("href"); ok {
		if href = strings.TrimSpace(href); href != "" {
			return linkValue(text, href)
		}
	}
	return text
}

func selectionText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	return nodeText(s.Get(0))
}
