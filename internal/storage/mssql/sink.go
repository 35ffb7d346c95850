package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"posimport/internal/pos"
	"posimport/internal/schema"
	"posimport/internal/storage"
)

// maxParams stays under SQL Server's 2100 parameters per request.
const maxParams = 2000

func init() {
	storage.Register("mssql", New)
}

// Sink implements storage.Sink for Microsoft SQL Server.
//
// Upserts use MERGE ... WITH (HOLDLOCK) so a concurrent insert of the same
// key cannot slip between the match and the insert. SaleDates reads with
// UPDLOCK + HOLDLOCK, which holds key-range locks on the looked-up sale_ids
// (present or not) until the transaction ends; that is what LockKeys does on
// other backends, so LockKeys itself is a no-op here.
type Sink struct {
	db         dbConn
	rawTable   storage.TableSpec
	cleanTable storage.TableSpec
}

// New opens a pool using the "sqlserver" driver and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(16)
	raw.SetMaxIdleConns(16)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return newSink(&sqlDB{db: raw}, cfg.WithDefaults()), nil
}

func newSink(db dbConn, cfg storage.Config) *Sink {
	return &Sink{
		db:         db,
		rawTable:   storage.RawTableSpec(cfg.RawTable),
		cleanTable: storage.CleanTableSpec(cfg.CleanTable, cfg.Schema),
	}
}

// Close releases database resources held by this sink.
func (s *Sink) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// EnsureTables creates both tables when missing; existing tables are left
// untouched.
func (s *Sink) EnsureTables(ctx context.Context) error {
	for _, t := range []storage.TableSpec{s.rawTable, s.cleanTable} {
		q, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (s *Sink) Begin(ctx context.Context) (storage.Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mssql: begin: %w", err)
	}
	return &batch{sink: s, tx: tx}, nil
}

type batch struct {
	sink *Sink
	tx   txConn
	done bool
}

func (b *batch) LockKeys(ctx context.Context, keys []string) error { return nil }

func (b *batch) SaleDates(ctx context.Context, keys []string) (map[string]sql.NullTime, error) {
	out := make(map[string]sql.NullTime, len(keys))

	for start := 0; start < len(keys); start += maxParams {
		end := min(start+maxParams, len(keys))
		q, args := buildSaleDatesSQL(b.sink.cleanTable.Name, keys[start:end])

		rows, err := b.tx.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("mssql: select sale dates: %w", err)
		}
		for rows.Next() {
			var k string
			var d sql.NullTime
			if err := rows.Scan(&k, &d); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("mssql: scan sale dates: %w", err)
			}
			out[storage.NormalizeKey(k)] = d
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *batch) UpsertRaw(ctx context.Context, rows []pos.RawRow) (int64, error) {
	vals := make([][]any, 0, len(rows))
	for _, r := range rows {
		args, err := storage.RawArgs(r, storage.AsTime)
		if err != nil {
			return 0, err
		}
		vals = append(vals, args)
	}
	return b.merge(ctx, b.sink.rawTable, vals)
}

func (b *batch) UpsertClean(ctx context.Context, rows []pos.CleanRow) (int64, error) {
	vals := make([][]any, 0, len(rows))
	for _, r := range rows {
		vals = append(vals, storage.CleanArgs(r, storage.AsTime))
	}
	return b.merge(ctx, b.sink.cleanTable, vals)
}

func (b *batch) merge(ctx context.Context, t storage.TableSpec, rows [][]any) (int64, error) {
	cols := t.ColumnNames()
	chunk := storage.RowsPerChunk(maxParams, len(cols))
	var total int64

	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		q, args := buildMergeSQL(t.Name, cols, rows[start:end], t.PrimaryKey)
		res, err := b.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("mssql: merge %s: %w", t.Name, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

func (b *batch) Commit(ctx context.Context) error {
	b.done = true
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit: %w", err)
	}
	return nil
}

func (b *batch) Rollback(ctx context.Context) error {
	if b.done {
		return nil
	}
	b.done = true
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("mssql: rollback: %w", err)
	}
	return nil
}

// buildCreateSQL returns an idempotent CREATE TABLE guarded by OBJECT_ID.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("mssql: table %s: no columns", t.Name)
	}

	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		def, err := mssqlColumnDef(c, c.Name == t.PrimaryKey)
		if err != nil {
			return "", fmt.Errorf("mssql: table %s: %w", t.Name, err)
		}
		defs = append(defs, def)
	}
	if t.PrimaryKey != "" {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", mssqlIdent(t.PrimaryKey)))
	}
	return wrapCreateIfMissing(t.Name, strings.Join(defs, ", ")), nil
}

// wrapCreateIfMissing wraps CREATE TABLE in an OBJECT_ID guard; SQL Server
// has no CREATE TABLE IF NOT EXISTS.
func wrapCreateIfMissing(tableName string, innerDefs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(tableName, "'", "''"),
		mssqlTableIdent(tableName),
		innerDefs,
	)
}

// mssqlColumnDef renders one column. Key columns need a bounded length to be
// indexable.
func mssqlColumnDef(c storage.ColumnSpec, isKey bool) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("column name must be set")
	}

	var typ string
	switch c.Type {
	case storage.TypeText:
		typ = "NVARCHAR(MAX)"
		if isKey {
			typ = "NVARCHAR(450)"
		}
	case storage.TypeDocument:
		typ = "NVARCHAR(MAX)"
	case storage.TypeDate:
		typ = "DATE"
	case storage.TypeNumeric:
		typ = "DECIMAL(19,4)"
	default:
		return "", fmt.Errorf("column %s: unsupported type %q", name, c.Type)
	}

	def := mssqlIdent(name) + " " + typ
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def, nil
}

// buildSaleDatesSQL selects stored dates for keys with locks held until the
// transaction ends.
func buildSaleDatesSQL(table string, keys []string) (string, []any) {
	ph := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		ph[i] = fmt.Sprintf("@p%d", i+1)
		args[i] = k
	}
	q := fmt.Sprintf("SELECT %s, %s FROM %s WITH (UPDLOCK, HOLDLOCK) WHERE %s IN (%s)",
		mssqlIdent(schema.KeyField), mssqlIdent(schema.DateField),
		mssqlTableIdent(table), mssqlIdent(schema.KeyField),
		strings.Join(ph, ", "))
	return q, args
}

// buildMergeSQL builds a MERGE that updates every non-key column of matched
// rows and inserts the rest. The source must not repeat a key; SQL Server
// rejects a MERGE that touches the same target row twice.
func buildMergeSQL(table string, columns []string, rows [][]any, key string) (string, []any) {
	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" WITH (HOLDLOCK) AS t USING (VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	colList := make([]string, len(columns))
	srcList := make([]string, len(columns))
	var sets []string
	for i, c := range columns {
		colList[i] = mssqlIdent(c)
		srcList[i] = "s." + mssqlIdent(c)
		if c != key {
			sets = append(sets, fmt.Sprintf("t.%s = s.%s", mssqlIdent(c), mssqlIdent(c)))
		}
	}

	fmt.Fprintf(&b, ") AS s (%s) ON t.%s = s.%s",
		strings.Join(colList, ", "), mssqlIdent(key), mssqlIdent(key))
	if len(sets) > 0 {
		b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(colList, ", "), strings.Join(srcList, ", "))
	return b.String(), args
}

// mssqlIdent returns a bracket-quoted identifier.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.pos_sales" -> [dbo].[pos_sales]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
