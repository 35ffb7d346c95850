package coerce

import (
	"posimport/internal/extract"
	"posimport/internal/mapping"
	"posimport/internal/pos"
	"posimport/internal/schema"
)

// Row builds the normalized projection of a grid row. Every canonical field
// is present in the result; absent or uninterpretable values are null.
func Row(s *schema.Schema, p *mapping.Projection, r extract.Row, sourceFile string) pos.CleanRow {
	fields := s.Fields()
	out := pos.CleanRow{
		Values:     make([]any, len(fields)),
		SourceFile: sourceFile,
	}

	for i, f := range fields {
		v := p.Value(r, f.Name)
		switch f.Kind {
		case schema.KindDate:
			out.Values[i] = Date(v)
		case schema.KindNumber:
			out.Values[i] = Number(v)
		default:
			out.Values[i] = Text(v)
		}
	}

	out.SaleID, _ = Key(p.Value(r, schema.KeyField))
	return out
}
