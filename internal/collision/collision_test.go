package collision

import (
	"bytes"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"posimport/internal/pos"
)

func date(s string) sql.NullTime {
	if s == "" {
		return sql.NullTime{}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return sql.NullTime{Time: t, Valid: true}
}

// row builds a CleanRow with the sale date at index 1.
func row(key, d string) pos.CleanRow {
	return pos.CleanRow{SaleID: key, Values: []any{sql.NullString{String: key, Valid: key != ""}, date(d)}}
}

func TestKeys(t *testing.T) {
	t.Parallel()

	got := Keys([]pos.CleanRow{row(" 2 ", ""), row("1", ""), row("2", ""), row(" ", "")})
	if !reflect.DeepEqual(got, []string{"2", "1"}) {
		t.Fatalf("Keys=%q", got)
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	existing := map[string]sql.NullTime{
		"1": date("2024-01-05"),
		"2": date("2023-02-01"),
		"3": {},
		"4": date("2024-01-01"),
	}
	rows := []pos.CleanRow{
		row("1", "2024-01-05"), // same date
		row("2", "2024-01-05"), // collision
		row("3", "2024-01-05"), // stored date missing
		row("4", ""),           // incoming date missing
		row("5", "2024-01-05"), // new key
	}

	got := Detect(rows, 1, existing)
	if len(got) != 1 || got[0].Key != "2" {
		t.Fatalf("Detect=%+v", got)
	}
	if !got[0].Existing.Time.Equal(date("2023-02-01").Time) || !got[0].Incoming.Time.Equal(date("2024-01-05").Time) {
		t.Fatalf("collision dates=%+v", got[0])
	}
}

func TestDetect_IgnoresTimeOfDay(t *testing.T) {
	t.Parallel()

	stored := sql.NullTime{Time: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Valid: true}
	r := pos.CleanRow{SaleID: "1", Values: []any{nil, sql.NullTime{Time: time.Date(2024, 1, 5, 15, 30, 0, 0, time.UTC), Valid: true}}}
	if got := Detect([]pos.CleanRow{r}, 1, map[string]sql.NullTime{"1": stored}); len(got) != 0 {
		t.Fatalf("same day must not collide: %+v", got)
	}
}

func TestReport_Truncates(t *testing.T) {
	t.Parallel()

	var cs []Collision
	for i := 0; i < 30; i++ {
		cs = append(cs, Collision{Key: fmt.Sprint(i), Existing: date("2023-01-01"), Incoming: date("2024-01-01")})
	}

	r := NewReport(cs, 0)
	if r.Total != 30 || len(r.Listed) != DefaultLimit || r.Truncated != 5 {
		t.Fatalf("report=%d/%d/%d", r.Total, len(r.Listed), r.Truncated)
	}

	var buf bytes.Buffer
	r.Write(&buf)
	out := buf.String()
	if strings.Count(out, "sale_id=") != DefaultLimit {
		t.Fatalf("expected %d listed lines:\n%s", DefaultLimit, out)
	}
	if !strings.Contains(out, "sale_id=0 existing=2023-01-01 incoming=2024-01-01") {
		t.Fatalf("unexpected line format:\n%s", out)
	}
	if !strings.HasSuffix(out, "  ... and 5 more\n") {
		t.Fatalf("missing truncation line:\n%s", out)
	}
}

func TestReport_Small(t *testing.T) {
	t.Parallel()

	r := NewReport([]Collision{{Key: "a"}}, 25)
	if r.Total != 1 || r.Truncated != 0 || len(r.Listed) != 1 {
		t.Fatalf("report=%+v", r)
	}
}
