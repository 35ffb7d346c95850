package postgres

import (
	"fmt"
	"strings"

	"posimport/internal/storage"
)

// buildCreateSQL generates DDL for one destination table.
//
// Outputs:
//   - schemaSQL: CREATE SCHEMA statement when t.Name is schema-qualified.
//   - tableSQL:  CREATE TABLE IF NOT EXISTS for the table.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", "", fmt.Errorf("table %s: no columns", t.Name)
	}

	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}

	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		def, err := buildColumnDef(c)
		if err != nil {
			return "", "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		defs = append(defs, def)
	}
	if t.PrimaryKey != "" {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", pgIdent(t.PrimaryKey)))
	}

	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, pgTableIdent(t.Name), strings.Join(defs, ", "))
	return schemaSQL, tableSQL, nil
}

// buildColumnDef renders a single column definition.
func buildColumnDef(c storage.ColumnSpec) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("column name must be set")
	}
	typ, err := pgType(c.Type)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", name, err)
	}

	def := pgIdent(name) + " " + typ
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def, nil
}

func pgType(t storage.ColumnType) (string, error) {
	switch t {
	case storage.TypeText:
		return "TEXT", nil
	case storage.TypeDate:
		return "DATE", nil
	case storage.TypeNumeric:
		return "NUMERIC", nil
	case storage.TypeDocument:
		return "JSONB", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", t)
	}
}

// splitQualifiedName splits a schema-qualified name into (schema, table).
//
// Examples:
//   - "public.pos_sales" => ("public", "pos_sales")
//   - "pos_sales"        => ("", "pos_sales")
//
// Only a single dot is understood; anything else is treated as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// pgIdent double-quotes an identifier, escaping embedded quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// pgTableIdent quotes a possibly schema-qualified table name.
func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}
