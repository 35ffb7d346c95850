package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"posimport/internal/pos"
	"posimport/internal/schema"
	"posimport/internal/storage"
)

// maxParams is the Postgres bind-parameter limit per statement.
const maxParams = 65535

func init() {
	storage.Register("postgres", New)
}

// pgxPool is the subset of *pgxpool.Pool the sink uses; pgxmock satisfies it.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

/*
Sink implements storage.Sink for Postgres.

It provides:
  - INSERT ... ON CONFLICT (sale_id) DO UPDATE for both tables
  - jsonb storage of the raw document
  - transaction-scoped advisory locks per sale_id, so two importers never
    interleave the collision read and the write for the same key
*/
type Sink struct {
	pool       pgxPool
	rawTable   storage.TableSpec
	cleanTable storage.TableSpec
}

// New creates a Postgres-backed sink.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return newSink(pool, cfg.WithDefaults()), nil
}

func newSink(pool pgxPool, cfg storage.Config) *Sink {
	return &Sink{
		pool:       pool,
		rawTable:   storage.RawTableSpec(cfg.RawTable),
		cleanTable: storage.CleanTableSpec(cfg.CleanTable, cfg.Schema),
	}
}

// Close closes the connection pool.
func (s *Sink) Close() {
	s.pool.Close()
}

// EnsureTables creates both tables if missing. This method is idempotent.
func (s *Sink) EnsureTables(ctx context.Context) error {
	for _, t := range []storage.TableSpec{s.rawTable, s.cleanTable} {
		schemaSQL, tableSQL, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if schemaSQL != "" {
			if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
				return fmt.Errorf("postgres: create schema for %s: %w", t.Name, err)
			}
		}
		if _, err := s.pool.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// Begin opens a transaction.
func (s *Sink) Begin(ctx context.Context) (storage.Batch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &batch{sink: s, tx: tx}, nil
}

type batch struct {
	sink *Sink
	tx   pgx.Tx
	done bool
}

// LockKeys takes pg_advisory_xact_lock for every key, in sorted order. The
// locks are released when the transaction ends.
func (b *batch) LockKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	q := `SELECT pg_advisory_xact_lock(hashtext($1), hashtext(k)) FROM unnest($2::text[]) AS t(k)`
	if _, err := b.tx.Exec(ctx, q, b.sink.cleanTable.Name, sorted); err != nil {
		return fmt.Errorf("postgres: advisory lock: %w", err)
	}
	return nil
}

// SaleDates returns stored sale dates for keys present in the normalized table.
func (b *batch) SaleDates(ctx context.Context, keys []string) (map[string]sql.NullTime, error) {
	out := make(map[string]sql.NullTime, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	q := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s = ANY($1)`,
		pgIdent(schema.KeyField), pgIdent(schema.DateField),
		pgTableIdent(b.sink.cleanTable.Name), pgIdent(schema.KeyField))

	rows, err := b.tx.Query(ctx, q, keys)
	if err != nil {
		return nil, fmt.Errorf("postgres: select sale dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var d *time.Time
		if err := rows.Scan(&k, &d); err != nil {
			return nil, fmt.Errorf("postgres: scan sale dates: %w", err)
		}
		nt := sql.NullTime{}
		if d != nil {
			nt = sql.NullTime{Time: *d, Valid: true}
		}
		out[storage.NormalizeKey(k)] = nt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows sale dates: %w", err)
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
	return b.upsert(ctx, b.sink.rawTable, vals)
}

func (b *batch) UpsertClean(ctx context.Context, rows []pos.CleanRow) (int64, error) {
	vals := make([][]any, 0, len(rows))
	for _, r := range rows {
		vals = append(vals, storage.CleanArgs(r, storage.AsTime))
	}
	return b.upsert(ctx, b.sink.cleanTable, vals)
}

func (b *batch) upsert(ctx context.Context, t storage.TableSpec, rows [][]any) (int64, error) {
	cols := t.ColumnNames()
	chunk := storage.RowsPerChunk(maxParams, len(cols))
	total := int64(0)

	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		q, args := buildUpsertSQL(t.Name, cols, rows[start:end], t.PrimaryKey)
		tag, err := b.tx.Exec(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("postgres: upsert %s: %w", t.Name, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (b *batch) Commit(ctx context.Context) error {
	b.done = true
	if err := b.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (b *batch) Rollback(ctx context.Context) error {
	if b.done {
		return nil
	}
	b.done = true
	if err := b.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

// buildUpsertSQL constructs a multi-row INSERT ... ON CONFLICT DO UPDATE that
// replaces every non-key column with the incoming value.
//
// It is pure so placeholder numbering and the conflict clause can be tested
// without a database.
//
// Constraints:
//   - every row has len(columns) values.
//   - keys are unique within rows; Postgres rejects a statement that would
//     update the same row twice.
func buildUpsertSQL(table string, columns []string, rows [][]any, key string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

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
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(pgIdent(key))
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
		b.WriteString(pgIdent(c))
		b.WriteString(" = EXCLUDED.")
		b.WriteString(pgIdent(c))
	}
	return b.String(), args
}
