package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"posimport/internal/pos"
	"posimport/internal/schema"
	"posimport/internal/storage"
)

// maxParams is SQLITE_MAX_VARIABLE_NUMBER for builds since 3.32.
const maxParams = 32766

// Sink implements storage.Sink on a local SQLite file.
//
// The pool is limited to one connection, so transactions are serialized by
// database/sql and LockKeys has nothing left to do. This also keeps
// ":memory:" databases alive across calls.
type Sink struct {
	db         *sql.DB
	rawTable   storage.TableSpec
	cleanTable storage.TableSpec
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	cfg = cfg.WithDefaults()
	return &Sink{
		db:         db,
		rawTable:   storage.RawTableSpec(cfg.RawTable),
		cleanTable: storage.CleanTableSpec(cfg.CleanTable, cfg.Schema),
	}, nil
}

func (s *Sink) Close() { _ = s.db.Close() }

func (s *Sink) EnsureTables(ctx context.Context) error {
	for _, t := range []storage.TableSpec{s.rawTable, s.cleanTable} {
		q, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (s *Sink) Begin(ctx context.Context) (storage.Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	return &batch{sink: s, tx: tx}, nil
}

type batch struct {
	sink *Sink
	tx   *sql.Tx
	done bool
}

func (b *batch) LockKeys(ctx context.Context, keys []string) error { return nil }

func (b *batch) SaleDates(ctx context.Context, keys []string) (map[string]sql.NullTime, error) {
	out := make(map[string]sql.NullTime, len(keys))
	const chunkSize = 2000

	for start := 0; start < len(keys); start += chunkSize {
		end := min(start+chunkSize, len(keys))
		chunk := keys[start:end]

		ph := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, k := range chunk {
			ph[i] = "?"
			args[i] = k
		}

		q := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s IN (%s)`,
			sqlIdent(schema.KeyField), sqlIdent(schema.DateField),
			sqlIdent(b.sink.cleanTable.Name), sqlIdent(schema.KeyField),
			strings.Join(ph, ","))

		rows, err := b.tx.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("select sale dates: %w", err)
		}
		for rows.Next() {
			var k, d any
			if err := rows.Scan(&k, &d); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan sale dates: %w", err)
			}
			nt, err := scanDate(d)
			if err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("sale_date for %v: %w", k, err)
			}
			out[storage.NormalizeKey(k)] = nt
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
		args, err := storage.RawArgs(r, storage.AsISODate)
		if err != nil {
			return 0, err
		}
		vals = append(vals, args)
	}
	return b.upsert(ctx, b.sink.rawTable, vals)
}

func (b *batch) UpsertClean(ctx context.Context, rows []pos.CleanRow) (int64, error) {
	vals := make([][]any, 0, len(rows))
	for _, r := range rows {
		vals = append(vals, storage.CleanArgs(r, storage.AsISODate))
	}
	return b.upsert(ctx, b.sink.cleanTable, vals)
}

func (b *batch) upsert(ctx context.Context, t storage.TableSpec, rows [][]any) (int64, error) {
	cols := t.ColumnNames()
	chunk := storage.RowsPerChunk(maxParams, len(cols))
	var total int64

	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		q, args := buildUpsertSQL(t.Name, cols, rows[start:end], t.PrimaryKey)
		res, err := b.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("upsert %s: %w", t.Name, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

func (b *batch) Commit(ctx context.Context) error {
	b.done = true
	return b.tx.Commit()
}

func (b *batch) Rollback(ctx context.Context) error {
	if b.done {
		return nil
	}
	b.done = true
	if err := b.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

// sqlIdent quotes an identifier for SQLite.
func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %s: no columns", t.Name)
	}

	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("table %s: column name must be set", t.Name)
		}
		typ, err := sqliteType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		def := sqlIdent(c.Name) + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if t.PrimaryKey != "" {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", sqlIdent(t.PrimaryKey)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", sqlIdent(t.Name), strings.Join(defs, ", ")), nil
}

// sqliteType picks declared types by affinity. Numbers are stored as TEXT so
// decimal strings keep their exact digits.
func sqliteType(t storage.ColumnType) (string, error) {
	switch t {
	case storage.TypeText, storage.TypeDocument, storage.TypeNumeric:
		return "TEXT", nil
	case storage.TypeDate:
		return "DATE", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", t)
	}
}

func buildUpsertSQL(table string, columns []string, rows [][]any, key string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	one := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(one)
		args = append(args, row[:len(columns)]...)
	}

	b.WriteString(" ON CONFLICT(")
	b.WriteString(sqlIdent(key))
	b.WriteString(") DO UPDATE SET ")
	first := true
	for _, c := range columns {
		if c == key {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(sqlIdent(c) + "=excluded." + sqlIdent(c))
	}
	return b.String(), args
}

// scanDate converts a DATE column value. The driver hands back time.Time for
// declared date columns it can parse and the stored text otherwise.
func scanDate(v any) (sql.NullTime, error) {
	switch t := v.(type) {
	case nil:
		return sql.NullTime{}, nil
	case time.Time:
		return sql.NullTime{Time: t.UTC(), Valid: true}, nil
	case string:
		ts, err := parseSQLiteTime(t)
		if err != nil {
			return sql.NullTime{}, err
		}
		return sql.NullTime{Time: ts, Valid: true}, nil
	case []byte:
		return scanDate(string(t))
	default:
		return sql.NullTime{}, fmt.Errorf("unexpected date type %T", v)
	}
}

// parseSQLiteTime parses dates and timestamps stored as text.
//
// Supported formats:
//   - RFC3339Nano and RFC3339
//   - "2006-01-02 15:04:05Z07:00" with optional fractional seconds
//   - "2006-01-02 15:04:05" and "2006-01-02" (interpreted as UTC)
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	zoned := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	for _, layout := range zoned {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
