// Package collision detects business keys that are about to overwrite a
// stored sale from a different date, which usually means the POS reset its
// sale numbering.
package collision

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"posimport/internal/pos"
)

// DefaultLimit is how many collisions a report lists.
const DefaultLimit = 25

// Collision is one key whose stored and incoming dates differ.
type Collision struct {
	Key      string
	Existing sql.NullTime
	Incoming sql.NullTime
}

// Keys returns the trimmed, distinct, non-blank keys of rows in order of
// first appearance.
func Keys(rows []pos.CleanRow) []string {
	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		k := strings.TrimSpace(r.SaleID)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Detect compares each incoming row's date with the stored date for its key.
// A collision requires both dates to be present and to differ; a missing
// date on either side is never a collision. dateIndex is the position of the
// sale date in CleanRow.Values.
func Detect(rows []pos.CleanRow, dateIndex int, existing map[string]sql.NullTime) []Collision {
	var out []Collision
	for _, r := range rows {
		prev, ok := existing[strings.TrimSpace(r.SaleID)]
		if !ok || !prev.Valid {
			continue
		}
		inc := dateAt(r, dateIndex)
		if !inc.Valid {
			continue
		}
		if sameDay(prev.Time, inc.Time) {
			continue
		}
		out = append(out, Collision{Key: r.SaleID, Existing: prev, Incoming: inc})
	}
	return out
}

func dateAt(r pos.CleanRow, i int) sql.NullTime {
	if i < 0 || i >= len(r.Values) {
		return sql.NullTime{}
	}
	d, _ := r.Values[i].(sql.NullTime)
	return d
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Report is a bounded summary of collisions for display.
type Report struct {
	Total     int
	Listed    []Collision
	Truncated int
}

// NewReport keeps the first limit collisions. A limit <= 0 uses DefaultLimit.
func NewReport(cs []Collision, limit int) Report {
	if limit <= 0 {
		limit = DefaultLimit
	}
	r := Report{Total: len(cs)}
	if len(cs) > limit {
		r.Listed = append(r.Listed, cs[:limit]...)
		r.Truncated = len(cs) - limit
	} else {
		r.Listed = append(r.Listed, cs...)
	}
	return r
}

// Write prints the report for an operator.
func (r Report) Write(w io.Writer) {
	for _, c := range r.Listed {
		fmt.Fprintf(w, "  sale_id=%s existing=%s incoming=%s\n", c.Key, isoDate(c.Existing), isoDate(c.Incoming))
	}
	if r.Truncated > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", r.Truncated)
	}
}

func isoDate(t sql.NullTime) string {
	if !t.Valid {
		return "null"
	}
	return t.Time.Format("2006-01-02")
}
