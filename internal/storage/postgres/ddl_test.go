package postgres

import (
	"strings"
	"testing"

	"posimport/internal/storage"
)

func TestBuildCreateSQL_QualifiedName(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "sales.pos_sales_raw",
		PrimaryKey: "sale_id",
		Columns: []storage.ColumnSpec{
			{Name: "sale_id", Type: storage.TypeText},
			{Name: "row_json", Type: storage.TypeDocument},
			{Name: "total", Type: storage.TypeNumeric, Nullable: true},
		},
	}

	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != `CREATE SCHEMA IF NOT EXISTS "sales";` {
		t.Fatalf("unexpected schema SQL: %s", schemaSQL)
	}
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "sales"."pos_sales_raw"`,
		`"sale_id" TEXT NOT NULL`,
		`"row_json" JSONB NOT NULL`,
		`"total" NUMERIC,`,
		`PRIMARY KEY ("sale_id")`,
	} {
		if !strings.Contains(tableSQL, want) {
			t.Fatalf("table SQL missing %q:\n%s", want, tableSQL)
		}
	}
}

func TestBuildCreateSQL_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		spec storage.TableSpec
	}{
		{"empty name", storage.TableSpec{Columns: []storage.ColumnSpec{{Name: "a", Type: storage.TypeText}}}},
		{"no columns", storage.TableSpec{Name: "t"}},
		{"blank column", storage.TableSpec{Name: "t", Columns: []storage.ColumnSpec{{Name: " ", Type: storage.TypeText}}}},
		{"bad type", storage.TableSpec{Name: "t", Columns: []storage.ColumnSpec{{Name: "a", Type: "blob"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := buildCreateSQL(tc.spec); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestPgIdent_EscapesQuotes(t *testing.T) {
	t.Parallel()

	if got := pgIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("pgIdent: got %s", got)
	}
	if got := pgTableIdent("a.b.c"); got != `"a.b.c"` {
		t.Fatalf("pgTableIdent multi-dot: got %s", got)
	}
}
