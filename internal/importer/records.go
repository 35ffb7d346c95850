package importer

import (
	"database/sql"
	"fmt"

	"posimport/internal/coerce"
	"posimport/internal/extract"
	"posimport/internal/mapping"
	"posimport/internal/pos"
	"posimport/internal/schema"
)

// buildRecords produces both projections of every grid row. Rows with a blank
// business key are dropped and counted.
func buildRecords(s *schema.Schema, p *mapping.Projection, g *extract.Grid, sourceFile string) ([]pos.Record, int) {
	dateIdx, _ := s.FieldIndex(schema.DateField)
	names := documentNames(g.Headers)

	recs := make([]pos.Record, 0, len(g.Rows))
	blank := 0
	for _, r := range g.Rows {
		clean := coerce.Row(s, p, r, sourceFile)
		if clean.SaleID == "" {
			blank++
			continue
		}
		date, _ := clean.Values[dateIdx].(sql.NullTime)
		recs = append(recs, pos.Record{
			ID:    r.ID,
			Clean: clean,
			Raw: pos.RawRow{
				SaleID:     clean.SaleID,
				SaleDate:   date,
				SourceFile: sourceFile,
				Doc:        rawDocument(names, r),
			},
		})
	}
	return recs, blank
}

// documentNames names every column for the raw archive. Blank headers get a
// positional name so no cell is lost.
func documentNames(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		out[i] = h
	}
	return out
}

// rawDocument keeps every cell under its header in column order. A repeated
// header stays at its first position and holds the last value.
func rawDocument(names []string, r extract.Row) pos.Document {
	doc := make(pos.Document, 0, len(names))
	at := make(map[string]int, len(names))
	for i, name := range names {
		var v any
		if i < len(r.Cells) && !extract.IsBlank(r.Cells[i]) {
			v = r.Cells[i]
		}
		if j, ok := at[name]; ok {
			doc[j].Value = v
			continue
		}
		at[name] = len(doc)
		doc = append(doc, pos.Field{Name: name, Value: v})
	}
	return doc
}

func rawRows(recs []pos.Record) []pos.RawRow {
	out := make([]pos.RawRow, len(recs))
	for i, r := range recs {
		out[i] = r.Raw
	}
	return out
}

func cleanRows(recs []pos.Record) []pos.CleanRow {
	out := make([]pos.CleanRow, len(recs))
	for i, r := range recs {
		out[i] = r.Clean
	}
	return out
}
