package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"posimport/internal/pos"
	"posimport/internal/storage"
)

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("unsupported") }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeRows struct {
	data [][2]any
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i-1]
	*dest[0].(*string) = row[0].(string)
	if row[1] != nil {
		*dest[1].(*sql.NullTime) = sql.NullTime{Time: row[1].(time.Time), Valid: true}
	}
	return nil
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

type fakeTx struct {
	execs      []string
	queries    []string
	rows       *fakeRows
	execErr    error
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	tx.execs = append(tx.execs, q)
	if tx.execErr != nil {
		return nil, tx.execErr
	}
	return fakeResult(1), nil
}

func (tx *fakeTx) QueryContext(_ context.Context, q string, args ...any) (rowIter, error) {
	tx.queries = append(tx.queries, q)
	if tx.rows == nil {
		return &fakeRows{}, nil
	}
	return tx.rows, nil
}

func (tx *fakeTx) Commit() error   { tx.committed = true; return nil }
func (tx *fakeTx) Rollback() error { tx.rolledBack = true; return nil }

type fakeDB struct {
	execs []string
	tx    *fakeTx
}

func (db *fakeDB) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	db.execs = append(db.execs, q)
	return fakeResult(0), nil
}

func (db *fakeDB) BeginTx(context.Context, *sql.TxOptions) (txConn, error) { return db.tx, nil }
func (db *fakeDB) Close() error                                           { return nil }

func TestEnsureTables_GuardedCreate(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	s := newSink(db, storage.Config{RawTable: "dbo.pos_sales_raw"}.WithDefaults())

	if err := s.EnsureTables(context.Background()); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	if len(db.execs) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(db.execs))
	}
	raw := db.execs[0]
	for _, want := range []string{
		"IF OBJECT_ID(N'dbo.pos_sales_raw', N'U') IS NULL BEGIN CREATE TABLE [dbo].[pos_sales_raw]",
		"[sale_id] NVARCHAR(450) NOT NULL",
		"[row_json] NVARCHAR(MAX) NOT NULL",
		"PRIMARY KEY ([sale_id])",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("raw DDL missing %q:\n%s", want, raw)
		}
	}
	if !strings.Contains(db.execs[1], "[grand_total] DECIMAL(19,4)") {
		t.Fatalf("clean DDL missing numeric column:\n%s", db.execs[1])
	}
}

func TestBatch_SaleDatesAndMerge(t *testing.T) {
	t.Parallel()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tx := &fakeTx{rows: &fakeRows{data: [][2]any{{"A1 ", day}, {"B2", nil}}}}
	s := newSink(&fakeDB{tx: tx}, storage.Config{}.WithDefaults())
	ctx := context.Background()

	b, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := b.LockKeys(ctx, []string{"A1", "B2"}); err != nil {
		t.Fatalf("LockKeys: %v", err)
	}
	dates, err := b.SaleDates(ctx, []string{"A1", "B2"})
	if err != nil {
		t.Fatalf("SaleDates: %v", err)
	}
	if !dates["A1"].Valid || dates["B2"].Valid || len(dates) != 2 {
		t.Fatalf("unexpected dates: %v", dates)
	}
	if !strings.Contains(tx.queries[0], "WITH (UPDLOCK, HOLDLOCK) WHERE [sale_id] IN (@p1, @p2)") {
		t.Fatalf("unexpected query: %s", tx.queries[0])
	}

	n, err := b.UpsertRaw(ctx, []pos.RawRow{{SaleID: "A1", Doc: pos.Document{}}})
	if err != nil || n != 1 {
		t.Fatalf("UpsertRaw n=%d err=%v", n, err)
	}
	if !strings.HasPrefix(tx.execs[0], "MERGE INTO [pos_sales_raw] WITH (HOLDLOCK) AS t") {
		t.Fatalf("unexpected statement: %s", tx.execs[0])
	}

	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := b.Rollback(ctx); err != nil {
		t.Fatalf("Rollback after commit: %v", err)
	}
	if !tx.committed || tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v", tx.committed, tx.rolledBack)
	}
}

func TestBatch_MergeErrorThenRollback(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{execErr: errors.New("deadlock victim")}
	s := newSink(&fakeDB{tx: tx}, storage.Config{}.WithDefaults())
	ctx := context.Background()

	b, _ := s.Begin(ctx)
	if _, err := b.UpsertRaw(ctx, []pos.RawRow{{SaleID: "A1", Doc: pos.Document{}}}); err == nil {
		t.Fatalf("expected merge error")
	}
	if err := b.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if !tx.rolledBack {
		t.Fatalf("rollback not issued")
	}
}

func TestBuildMergeSQL(t *testing.T) {
	t.Parallel()

	q, args := buildMergeSQL("pos_sales", []string{"sale_id", "tax"}, [][]any{{"A", "1"}, {"B", nil}}, "sale_id")
	want := "MERGE INTO [pos_sales] WITH (HOLDLOCK) AS t USING (VALUES (@p1, @p2), (@p3, @p4)) AS s ([sale_id], [tax]) " +
		"ON t.[sale_id] = s.[sale_id] WHEN MATCHED THEN UPDATE SET t.[tax] = s.[tax] " +
		"WHEN NOT MATCHED THEN INSERT ([sale_id], [tax]) VALUES (s.[sale_id], s.[tax]);"
	if q != want {
		t.Fatalf("sql mismatch\n got: %s\nwant: %s", q, want)
	}
	if len(args) != 4 || args[2] != "B" {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestMssqlTableIdent(t *testing.T) {
	t.Parallel()
	if got := mssqlTableIdent("dbo.we]ird"); got != "[dbo].[we]]ird]" {
		t.Fatalf("got %s", got)
	}
}
