package extracthtml

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"posimport/internal/extract"
)

// DebugTables prints every table's header row and score, marking the one
// SelectTable would pick. Used by the inspect command.
func DebugTables(w io.Writer, b []byte, expected map[string]struct{}) error {
	doc, err := goquery.NewDocumentFromReader(documentReader(b))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		fmt.Fprintln(w, "no <table> elements")
		return nil
	}

	cands := candidates(tables)
	best, _, _ := extract.SelectTable(cands, expected)
	for i, c := range cands {
		mark := " "
		if i == best {
			mark = "*"
		}
		rows := tables.Eq(i).Find("tr").Length()
		fmt.Fprintf(w, "%s table %d score=%d rows=%d\n", mark, i, extract.Score(c.Headers, expected), rows)
		fmt.Fprintf(w, "    headers: %s\n", strings.Join(quoteAll(c.Headers), ", "))
	}
	return nil
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
