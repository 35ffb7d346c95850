package storage

import (
	"posimport/internal/schema"
)

// ColumnType is a backend-neutral column type. Each backend maps it to its
// own SQL type.
type ColumnType string

const (
	TypeText     ColumnType = "text"
	TypeDate     ColumnType = "date"
	TypeNumeric  ColumnType = "numeric"
	TypeDocument ColumnType = "document"
)

// TableSpec describes a destination table for EnsureTables.
type TableSpec struct {
	Name       string
	PrimaryKey string
	Columns    []ColumnSpec
}

// ColumnSpec describes one column.
type ColumnSpec struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Column names of the raw archive table, in insert order.
var RawColumns = []string{schema.KeyField, schema.DateField, schema.SourceFileColumn, "row_json"}

// RawTableSpec describes the raw archive table.
func RawTableSpec(name string) TableSpec {
	return TableSpec{
		Name:       name,
		PrimaryKey: schema.KeyField,
		Columns: []ColumnSpec{
			{Name: schema.KeyField, Type: TypeText},
			{Name: schema.DateField, Type: TypeDate, Nullable: true},
			{Name: schema.SourceFileColumn, Type: TypeText, Nullable: true},
			{Name: "row_json", Type: TypeDocument},
		},
	}
}

// CleanTableSpec describes the normalized table for s.
func CleanTableSpec(name string, s *schema.Schema) TableSpec {
	t := TableSpec{Name: name, PrimaryKey: schema.KeyField}
	for _, f := range s.Fields() {
		c := ColumnSpec{Name: f.Name, Nullable: f.Name != schema.KeyField}
		switch f.Kind {
		case schema.KindDate:
			c.Type = TypeDate
		case schema.KindNumber:
			c.Type = TypeNumeric
		default:
			c.Type = TypeText
		}
		t.Columns = append(t.Columns, c)
	}
	t.Columns = append(t.Columns, ColumnSpec{Name: schema.SourceFileColumn, Type: TypeText, Nullable: true})
	return t
}

// ColumnNames returns the column names of t in order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
