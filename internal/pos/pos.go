// Package pos defines the row shapes produced for each imported sale.
package pos

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"time"
)

// Field is one header/value pair of a raw document.
type Field struct {
	Name  string
	Value any
}

// Document is the verbatim header → value mapping of one source row, in
// source column order. Values are string, float64, time.Time or nil.
type Document []Field

// Get returns the first value stored under name.
func (d Document) Get(name string) (any, bool) {
	for _, f := range d {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON renders the document as a JSON object that keeps column order.
// Dates are rendered as ISO dates, or RFC 3339 when they carry a time of day.
func (d Document) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')

		v, err := json.Marshal(jsonValue(f.Value))
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func jsonValue(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

// RawRow is the archive projection of a source row.
type RawRow struct {
	SaleID     string
	SaleDate   sql.NullTime
	SourceFile string
	Doc        Document
}

// CleanRow is the normalized projection of a source row.
//
// Values is aligned with schema.Schema.Fields(); each entry is a
// sql.NullString, sql.NullTime or decimal.NullDecimal depending on the field
// kind.
type CleanRow struct {
	SaleID     string
	Values     []any
	SourceFile string
}

// Record pairs both projections of a single source row. ID is the row's
// 1-based position among the data rows of the extracted table.
type Record struct {
	ID    int
	Raw   RawRow
	Clean CleanRow
}
