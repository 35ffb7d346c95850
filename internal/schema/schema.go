package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema is the immutable alias table plus the canonical field layout.
//
// A Schema is built once at process start and handed to the extractor and the
// column mapper; nothing mutates it afterwards, so it is safe for concurrent use.
type Schema struct {
	fields   []Field
	index    map[string]int
	aliases  map[string]string
	expected map[string]struct{}
}

// Default returns the schema with the built-in alias table.
func Default() *Schema {
	s, err := New(defaultAliases)
	if err != nil {
		// The built-in table is static; a failure here is a programming error.
		panic(err)
	}
	return s
}

// DefaultAliases returns a copy of the built-in alias table.
func DefaultAliases() map[string]string {
	return copyAliases(defaultAliases)
}

// New builds a Schema from an alias table.
//
// Labels are trimmed; every target must be a canonical field name and at
// least one label must map to the business key.
func New(aliases map[string]string) (*Schema, error) {
	s := &Schema{
		fields:   append([]Field(nil), canonicalFields...),
		index:    make(map[string]int, len(canonicalFields)),
		aliases:  make(map[string]string, len(aliases)),
		expected: make(map[string]struct{}, len(aliases)),
	}
	for i, f := range s.fields {
		s.index[f.Name] = i
	}

	hasKey := false
	for label, target := range aliases {
		label = strings.TrimSpace(label)
		target = strings.TrimSpace(target)
		if label == "" {
			return nil, fmt.Errorf("alias table: empty header label for %q", target)
		}
		if _, ok := s.index[target]; !ok {
			return nil, fmt.Errorf("alias table: label %q maps to unknown field %q", label, target)
		}
		if target == KeyField {
			hasKey = true
		}
		s.aliases[label] = target
		s.expected[strings.ToLower(label)] = struct{}{}
	}
	if !hasKey {
		return nil, fmt.Errorf("alias table: no label maps to %s", KeyField)
	}
	return s, nil
}

// Fields returns the canonical fields in column order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// FieldIndex returns the position of a canonical field in Fields().
func (s *Schema) FieldIndex(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Canonical resolves a header label to its canonical field. The label is
// trimmed; the comparison is otherwise exact.
func (s *Schema) Canonical(label string) (string, bool) {
	f, ok := s.aliases[strings.TrimSpace(label)]
	return f, ok
}

// IsExpectedHeader reports whether label matches any alias, ignoring case and
// surrounding whitespace. Table scoring uses this looser comparison.
func (s *Schema) IsExpectedHeader(label string) bool {
	_, ok := s.expected[strings.ToLower(strings.TrimSpace(label))]
	return ok
}

// ExpectedHeaders returns the lowercased alias labels.
func (s *Schema) ExpectedHeaders() map[string]struct{} {
	out := make(map[string]struct{}, len(s.expected))
	for k := range s.expected {
		out[k] = struct{}{}
	}
	return out
}

// Aliases returns a copy of the alias table.
func (s *Schema) Aliases() map[string]string {
	return copyAliases(s.aliases)
}

// LabelsFor returns the sorted labels that map to field.
func (s *Schema) LabelsFor(field string) []string {
	var out []string
	for label, target := range s.aliases {
		if target == field {
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}

// CleanColumns returns the normalized table column list: the canonical fields
// followed by the provenance column.
func (s *Schema) CleanColumns() []string {
	cols := make([]string, 0, len(s.fields)+1)
	for _, f := range s.fields {
		cols = append(cols, f.Name)
	}
	return append(cols, SourceFileColumn)
}

func copyAliases(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
