package storage

import (
	"context"
	"database/sql"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"posimport/internal/pos"
	"posimport/internal/schema"
)

type nopSink struct{ cfg Config }

func (nopSink) Close()                               {}
func (nopSink) EnsureTables(context.Context) error   { return nil }
func (nopSink) Begin(context.Context) (Batch, error) { return nil, nil }

func TestRegisterAndNew(t *testing.T) {
	var got Config
	Register("test-nop", func(_ context.Context, cfg Config) (Sink, error) {
		got = cfg
		return nopSink{cfg: cfg}, nil
	})

	if _, err := New(context.Background(), Config{Kind: "test-nop", DSN: "x"}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if got.RawTable != DefaultRawTable || got.CleanTable != DefaultCleanTable || got.Schema == nil {
		t.Fatalf("defaults not applied: %+v", got)
	}

	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	_, err := New(context.Background(), Config{Kind: "nope"})
	if err == nil || !strings.Contains(err.Error(), "test-nop") {
		t.Fatalf("unsupported kind error should list registered kinds: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate Register should panic")
		}
	}()
	Register("test-nop", func(context.Context, Config) (Sink, error) { return nil, nil })
}

func TestCleanTableSpec(t *testing.T) {
	t.Parallel()

	s := schema.Default()
	spec := CleanTableSpec("pos_sales", s)
	names := spec.ColumnNames()

	if names[0] != "sale_id" || names[len(names)-1] != "raw_source_file" {
		t.Fatalf("unexpected column order: %v", names)
	}
	if len(names) != len(s.Fields())+1 {
		t.Fatalf("columns=%d want %d", len(names), len(s.Fields())+1)
	}
	if !reflect.DeepEqual(names, s.CleanColumns()) {
		t.Fatalf("spec columns drift from schema.CleanColumns")
	}
	if spec.Columns[0].Nullable {
		t.Fatalf("key column must be NOT NULL")
	}
	if spec.Columns[1].Type != TypeDate || spec.Columns[8].Type != TypeNumeric {
		t.Fatalf("kinds not mapped: %+v %+v", spec.Columns[1], spec.Columns[8])
	}
}

func TestSQLValue(t *testing.T) {
	t.Parallel()

	d := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   any
		want any
	}{
		{sql.NullString{}, nil},
		{sql.NullString{String: "x", Valid: true}, "x"},
		{sql.NullTime{}, nil},
		{sql.NullTime{Time: d, Valid: true}, "2024-01-05"},
		{decimal.NullDecimal{}, nil},
		{decimal.NullDecimal{Decimal: decimal.RequireFromString("1234.50"), Valid: true}, "1234.5"},
		{nil, nil},
	}
	for _, tt := range tests {
		if got := SQLValue(tt.in, AsISODate); got != tt.want {
			t.Fatalf("SQLValue(%#v)=%#v want %#v", tt.in, got, tt.want)
		}
	}
}

func TestRawArgs(t *testing.T) {
	t.Parallel()

	r := pos.RawRow{
		SaleID:     "1001",
		SaleDate:   sql.NullTime{Time: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Valid: true},
		SourceFile: "a.xlsx",
		Doc:        pos.Document{{Name: "Sales#", Value: "1001"}},
	}
	args, err := RawArgs(r, AsTime)
	if err != nil {
		t.Fatalf("RawArgs: %v", err)
	}
	if args[0] != "1001" || args[2] != "a.xlsx" || args[3] != `{"Sales#":"1001"}` {
		t.Fatalf("args=%#v", args)
	}
	if _, ok := args[1].(time.Time); !ok {
		t.Fatalf("date arg should be time.Time, got %T", args[1])
	}
}

func TestCleanArgs_KeyFromSaleID(t *testing.T) {
	t.Parallel()

	r := pos.CleanRow{
		SaleID:     "7",
		Values:     []any{sql.NullString{String: "7", Valid: true}, sql.NullTime{}},
		SourceFile: "b.xls",
	}
	got := CleanArgs(r, AsTime)
	want := []any{"7", nil, "b.xls"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CleanArgs=%#v want %#v", got, want)
	}
}

func TestRowsPerChunk(t *testing.T) {
	t.Parallel()

	if got := RowsPerChunk(65535, 34); got != 1927 {
		t.Fatalf("got %d", got)
	}
	if got := RowsPerChunk(10, 34); got != 1 {
		t.Fatalf("got %d", got)
	}
	if got := RowsPerChunk(10, 0); got != 1 {
		t.Fatalf("got %d", got)
	}
}

func TestLastByKey(t *testing.T) {
	t.Parallel()

	type kv struct{ k, v string }
	in := []kv{{"a", "1"}, {"b", "1"}, {"a", "2"}, {"c", "1"}, {"a", "3"}}

	got, dups := LastByKey(in, func(x kv) string { return x.k })
	want := []kv{{"a", "3"}, {"b", "1"}, {"c", "1"}}
	if !reflect.DeepEqual(got, want) || dups != 2 {
		t.Fatalf("LastByKey=%v,%d want %v,2", got, dups, want)
	}
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{" 1001 ", "1001"},
		{[]byte("A-1 "), "A-1"},
		{int64(42), "42"},
		{1001.0, "1001"},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Fatalf("NormalizeKey(%#v)=%q want %q", tt.in, got, tt.want)
		}
	}
}
