package memory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"posimport/internal/pos"
)

func TestSink_CommitAndRollback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	b, _ := s.Begin(ctx)
	_, _ = b.UpsertRaw(ctx, []pos.RawRow{{SaleID: "1"}})
	_, _ = b.UpsertClean(ctx, []pos.CleanRow{{SaleID: "1", Values: []any{sql.NullString{String: "1", Valid: true}, sql.NullTime{Time: day, Valid: true}}}})
	if s.Len() != 0 {
		t.Fatalf("uncommitted rows visible")
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, ok := s.Raw("1"); !ok || s.Len() != 1 {
		t.Fatalf("committed rows missing")
	}

	b, _ = s.Begin(ctx)
	dates, _ := b.SaleDates(ctx, []string{"1", "2"})
	if len(dates) != 1 || !dates["1"].Time.Equal(day) {
		t.Fatalf("dates = %v", dates)
	}
	_, _ = b.UpsertClean(ctx, []pos.CleanRow{{SaleID: "2"}})
	_ = b.Rollback(ctx)
	if _, ok := s.Clean("2"); ok {
		t.Fatalf("rolled back row visible")
	}
}
