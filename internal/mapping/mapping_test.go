package mapping

import (
	"reflect"
	"strings"
	"testing"

	"posimport/internal/extract"
	"posimport/internal/importerr"
	"posimport/internal/schema"
)

func TestMap_AliasesAndDuplicates(t *testing.T) {
	t.Parallel()

	g := &extract.Grid{
		Headers: []string{" Sale # ", "Receitp#", "Receipt #", "Mystery", "Date of Sale"},
		Rows: []extract.Row{
			{ID: 1, Cells: []any{"1001", "", "R-9", "x", "1/5/2024"}},
			{ID: 2, Cells: []any{"1002", "R-1", "R-2", nil}},
		},
	}

	p, err := Map(schema.Default(), g)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	if got := p.Sources("receipt_no"); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("receipt_no sources=%v", got)
	}
	if got := p.Value(g.Rows[0], "receipt_no"); got != "R-9" {
		t.Fatalf("first non-blank receipt=%#v want R-9", got)
	}
	if got := p.Value(g.Rows[1], "receipt_no"); got != "R-1" {
		t.Fatalf("receipt=%#v want R-1", got)
	}
	if got := p.Value(g.Rows[0], schema.KeyField); got != "1001" {
		t.Fatalf("sale_id=%#v", got)
	}
	// short row: index 4 is out of range
	if got := p.Value(g.Rows[1], schema.DateField); got != nil {
		t.Fatalf("missing cell should be nil, got %#v", got)
	}
	if got := p.Value(g.Rows[0], "city"); got != nil {
		t.Fatalf("absent field should be nil, got %#v", got)
	}

	if !reflect.DeepEqual(p.Unmapped(), []string{"Mystery"}) {
		t.Fatalf("unmapped=%v", p.Unmapped())
	}
	if !reflect.DeepEqual(p.Mapped(), []string{"sale_id", "sale_date", "receipt_no"}) {
		t.Fatalf("mapped=%v", p.Mapped())
	}
	if len(p.Missing())+len(p.Mapped()) != len(schema.Default().Fields()) {
		t.Fatalf("mapped+missing should cover all fields")
	}
}

func TestMap_AliasMatchIsCaseSensitive(t *testing.T) {
	t.Parallel()

	g := &extract.Grid{Headers: []string{"sales#"}}
	_, err := Map(schema.Default(), g)
	if !importerr.Is(err, importerr.SchemaViolation) {
		t.Fatalf("want SchemaViolation, got %v", err)
	}
	if s := importerr.SuggestionOf(err); !strings.Contains(s, "Sales#") {
		t.Fatalf("suggestion should list key labels, got %q", s)
	}
}
