package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"posimport/internal/pos"
	"posimport/internal/schema"
	"posimport/internal/storage"
)

func newMockSink(t *testing.T) (*Sink, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newSink(mock, storage.Config{}.WithDefaults()), mock
}

func TestEnsureTables_CreatesBothTables(t *testing.T) {
	t.Parallel()
	s, mock := newMockSink(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "pos_sales_raw" \("sale_id" TEXT NOT NULL, "sale_date" DATE, "raw_source_file" TEXT, "row_json" JSONB NOT NULL, PRIMARY KEY \("sale_id"\)\);`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "pos_sales" \("sale_id" TEXT NOT NULL, "sale_date" DATE, .*"raw_source_file" TEXT, PRIMARY KEY \("sale_id"\)\);`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.EnsureTables(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureTables_PropagatesError(t *testing.T) {
	t.Parallel()
	s, mock := newMockSink(t)

	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))

	err := s.EnsureTables(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "pos_sales_raw")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatch_LockLookupUpsertCommit(t *testing.T) {
	t.Parallel()
	s, mock := newMockSink(t)
	ctx := context.Background()

	existing := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("pos_sales", []string{"A1", "B2"}).
		WillReturnResult(pgxmock.NewResult("SELECT", 2))
	mock.ExpectQuery(`SELECT "sale_id", "sale_date" FROM "pos_sales" WHERE "sale_id" = ANY\(\$1\)`).
		WithArgs([]string{"B2", "A1"}).
		WillReturnRows(pgxmock.NewRows([]string{"sale_id", "sale_date"}).
			AddRow("A1", &existing).
			AddRow("B2", nil))
	mock.ExpectExec(`INSERT INTO "pos_sales_raw" .* ON CONFLICT \("sale_id"\) DO UPDATE SET "sale_date" = EXCLUDED."sale_date"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO "pos_sales" .* ON CONFLICT \("sale_id"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	b, err := s.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, b.LockKeys(ctx, []string{"B2", "A1"}))

	dates, err := b.SaleDates(ctx, []string{"B2", "A1"})
	require.NoError(t, err)
	require.Len(t, dates, 2)
	require.True(t, dates["A1"].Valid)
	require.True(t, dates["A1"].Time.Equal(existing))
	require.False(t, dates["B2"].Valid)

	raw := pos.RawRow{
		SaleID:     "A1",
		SaleDate:   sql.NullTime{Time: existing, Valid: true},
		SourceFile: "export.xls",
		Doc:        pos.Document{{Name: "Sale ID", Value: "A1"}},
	}
	n, err := b.UpsertRaw(ctx, []pos.RawRow{raw})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	sch := schema.Default()
	values := make([]any, len(sch.Fields()))
	values[0] = sql.NullString{String: "A1", Valid: true}
	values[1] = sql.NullTime{Time: existing, Valid: true}
	for i := 2; i < len(values); i++ {
		values[i] = decimal.NullDecimal{}
	}
	n, err = b.UpsertClean(ctx, []pos.CleanRow{{SaleID: "A1", Values: values, SourceFile: "export.xls"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.NoError(t, b.Commit(ctx))
	require.NoError(t, b.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatch_RollbackOnUpsertFailure(t *testing.T) {
	t.Parallel()
	s, mock := newMockSink(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "pos_sales_raw"`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	b, err := s.Begin(ctx)
	require.NoError(t, err)

	_, err = b.UpsertRaw(ctx, []pos.RawRow{{SaleID: "A1", Doc: pos.Document{}}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")

	require.NoError(t, b.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatch_EmptyInputsSkipDatabase(t *testing.T) {
	t.Parallel()
	s, mock := newMockSink(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	b, err := s.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, b.LockKeys(ctx, nil))
	dates, err := b.SaleDates(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, dates)
	n, err := b.UpsertRaw(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, b.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildUpsertSQL_PlaceholdersAndConflict(t *testing.T) {
	t.Parallel()

	q, args := buildUpsertSQL("public.pos_sales", []string{"sale_id", "total"},
		[][]any{{"A", "1.5"}, {"B", nil}}, "sale_id")

	want := `INSERT INTO "public"."pos_sales" ("sale_id", "total") VALUES ($1, $2), ($3, $4) ON CONFLICT ("sale_id") DO UPDATE SET "total" = EXCLUDED."total"`
	if q != want {
		t.Fatalf("sql mismatch\n got: %s\nwant: %s", q, want)
	}
	if len(args) != 4 || args[0] != "A" || args[2] != "B" || args[3] != nil {
		t.Fatalf("unexpected args: %#v", args)
	}
}
