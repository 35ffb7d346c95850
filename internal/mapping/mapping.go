// Package mapping projects an extracted grid onto the canonical fields.
package mapping

import (
	"strings"

	"posimport/internal/extract"
	"posimport/internal/importerr"
	"posimport/internal/schema"
)

// Projection records, for each canonical field, which grid columns feed it.
type Projection struct {
	schema   *schema.Schema
	sources  map[string][]int
	unmapped []string
}

// Map resolves grid headers through the alias table.
//
// Headers are trimmed and matched exactly. Several columns may feed one field
// (duplicate or alternate spellings); Value takes the first non-blank one.
// A grid with no column for the business key is rejected.
func Map(s *schema.Schema, g *extract.Grid) (*Projection, error) {
	p := &Projection{schema: s, sources: make(map[string][]int)}

	for i, h := range g.Headers {
		field, ok := s.Canonical(h)
		if !ok {
			if t := strings.TrimSpace(h); t != "" {
				p.unmapped = append(p.unmapped, t)
			}
			continue
		}
		p.sources[field] = append(p.sources[field], i)
	}

	if len(p.sources[schema.KeyField]) == 0 {
		return nil, importerr.Newf(importerr.SchemaViolation, "missing required column mapped to %s", schema.KeyField).
			WithSuggestion("expected a header named one of: " + strings.Join(s.LabelsFor(schema.KeyField), ", "))
	}
	return p, nil
}

// Value returns the first non-blank cell among field's source columns, or
// nil when the field has no source column or every source cell is blank.
func (p *Projection) Value(row extract.Row, field string) any {
	for _, i := range p.sources[field] {
		if i >= len(row.Cells) {
			continue
		}
		if v := row.Cells[i]; !extract.IsBlank(v) {
			return v
		}
	}
	return nil
}

// Sources returns the grid columns feeding field.
func (p *Projection) Sources(field string) []int {
	return append([]int(nil), p.sources[field]...)
}

// Mapped lists the canonical fields that have at least one source column, in
// canonical order.
func (p *Projection) Mapped() []string {
	var out []string
	for _, f := range p.schema.Fields() {
		if len(p.sources[f.Name]) > 0 {
			out = append(out, f.Name)
		}
	}
	return out
}

// Missing lists canonical fields with no source column; they are written as
// null.
func (p *Projection) Missing() []string {
	var out []string
	for _, f := range p.schema.Fields() {
		if len(p.sources[f.Name]) == 0 {
			out = append(out, f.Name)
		}
	}
	return out
}

// Unmapped lists headers that matched no alias. They are kept in the raw
// archive only.
func (p *Projection) Unmapped() []string {
	return append([]string(nil), p.unmapped...)
}
