package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"posimport/internal/pos"
)

// DateEncoder converts a valid date to the value a driver expects.
type DateEncoder func(time.Time) any

// AsTime passes dates through as time.Time.
func AsTime(t time.Time) any { return t }

// AsISODate renders dates as "2006-01-02" text.
func AsISODate(t time.Time) any { return t.Format("2006-01-02") }

// SQLValue unwraps the typed null wrappers produced by coercion into plain
// driver arguments. Numbers travel as decimal strings to avoid float
// rounding on the way in.
func SQLValue(v any, date DateEncoder) any {
	switch t := v.(type) {
	case sql.NullString:
		if !t.Valid {
			return nil
		}
		return t.String
	case sql.NullTime:
		if !t.Valid {
			return nil
		}
		return date(t.Time)
	case decimal.NullDecimal:
		if !t.Valid {
			return nil
		}
		return t.Decimal.String()
	case time.Time:
		return date(t)
	default:
		return v
	}
}

// RawArgs returns the row values for RawColumns.
func RawArgs(r pos.RawRow, date DateEncoder) ([]any, error) {
	doc, err := json.Marshal(r.Doc)
	if err != nil {
		return nil, fmt.Errorf("encode row_json for %s: %w", r.SaleID, err)
	}
	return []any{r.SaleID, SQLValue(r.SaleDate, date), r.SourceFile, string(doc)}, nil
}

// CleanArgs returns the row values for CleanTableSpec(...).ColumnNames().
// The key column is taken from SaleID so it is never null.
func CleanArgs(r pos.CleanRow, date DateEncoder) []any {
	out := make([]any, 0, len(r.Values)+1)
	for i, v := range r.Values {
		if i == 0 {
			out = append(out, r.SaleID)
			continue
		}
		out = append(out, SQLValue(v, date))
	}
	return append(out, r.SourceFile)
}

// RowsPerChunk returns how many rows of width columns fit under maxParams
// bind parameters. It is at least 1.
func RowsPerChunk(maxParams, width int) int {
	if width <= 0 {
		return 1
	}
	n := maxParams / width
	if n < 1 {
		return 1
	}
	return n
}

// LastByKey keeps one element per key, the last one seen, at the position of
// that key's first appearance. It returns the kept elements and how many
// were superseded.
func LastByKey[T any](items []T, key func(T) string) ([]T, int) {
	idx := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	dups := 0
	for _, it := range items {
		k := key(it)
		if i, ok := idx[k]; ok {
			out[i] = it
			dups++
			continue
		}
		idx[k] = len(out)
		out = append(out, it)
	}
	return out, dups
}
