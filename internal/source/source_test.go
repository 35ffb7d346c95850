package source

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestScan_SortedFilteredAndDeduped(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	in := filepath.Join(root, "incoming")
	done := filepath.Join(root, "processed")
	if err := EnsureDirs(in, done); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}

	// Created out of order to check sorting.
	touch(t, filepath.Join(in, "b.xls"))
	touch(t, filepath.Join(in, "a.XLSX"))
	touch(t, filepath.Join(in, "notes.txt"))
	touch(t, filepath.Join(in, "~$a.xlsx"))
	touch(t, filepath.Join(in, ".hidden.xls"))
	touch(t, filepath.Join(done, "old.xlsx"))
	if err := os.Mkdir(filepath.Join(in, "dir.xls"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Scan(Options{Incoming: in, Processed: done})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{filepath.Join(in, "a.XLSX"), filepath.Join(in, "b.xls")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Scan=%v, want %v", got, want)
	}

	got, err = Scan(Options{Incoming: in, Processed: done, IncludeProcessed: true})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 3 || got[2] != filepath.Join(done, "old.xlsx") {
		t.Fatalf("Scan with processed=%v", got)
	}

	// Same directory twice yields each file once.
	got, err = Scan(Options{Incoming: in, Processed: in, IncludeProcessed: true})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("duplicates not removed: %v", got)
	}
}

func TestScan_MissingDir(t *testing.T) {
	t.Parallel()
	if _, err := Scan(Options{Incoming: filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestArchive(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	in := filepath.Join(root, "incoming")
	done := filepath.Join(root, "processed")
	if err := EnsureDirs(in); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(in, "day1.xlsx")
	touch(t, src)
	touch(t, filepath.Join(root, "stale"))

	dest, moved, err := Archive(src, done)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !moved || dest != filepath.Join(done, "day1.xlsx") {
		t.Fatalf("dest=%s moved=%v", dest, moved)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source still present: %v", err)
	}

	// Already archived: no-op.
	dest2, moved, err := Archive(dest, done)
	if err != nil || moved || dest2 != dest {
		t.Fatalf("re-archive dest=%s moved=%v err=%v", dest2, moved, err)
	}

	// Replaces an existing file of the same name.
	touch(t, src)
	if _, moved, err := Archive(src, done); err != nil || !moved {
		t.Fatalf("replace moved=%v err=%v", moved, err)
	}
}
