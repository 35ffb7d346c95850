// Package memory is an in-process storage.Sink used by -dry-run and tests.
package memory

import (
	"context"
	"database/sql"
	"sync"

	"posimport/internal/pos"
	"posimport/internal/storage"
)

func init() {
	storage.Register("memory", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		return New(), nil
	})
}

// Sink keeps both tables in maps. A batch stages its writes and applies them
// on Commit, holding the sink lock only while applying.
type Sink struct {
	mu    sync.RWMutex
	raw   map[string]pos.RawRow
	clean map[string]pos.CleanRow
}

// New returns an empty sink.
func New() *Sink {
	return &Sink{
		raw:   map[string]pos.RawRow{},
		clean: map[string]pos.CleanRow{},
	}
}

func (s *Sink) Close() {}

func (s *Sink) EnsureTables(ctx context.Context) error { return nil }

func (s *Sink) Begin(ctx context.Context) (storage.Batch, error) {
	return &batch{
		sink:  s,
		raw:   map[string]pos.RawRow{},
		clean: map[string]pos.CleanRow{},
	}, nil
}

// Raw returns the stored raw row for key.
func (s *Sink) Raw(key string) (pos.RawRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.raw[key]
	return r, ok
}

// Clean returns the stored normalized row for key.
func (s *Sink) Clean(key string) (pos.CleanRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.clean[key]
	return r, ok
}

// Len returns the number of normalized rows.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clean)
}

type batch struct {
	sink  *Sink
	raw   map[string]pos.RawRow
	clean map[string]pos.CleanRow
}

// LockKeys is a no-op; the importer serializes keys in-process.
func (b *batch) LockKeys(ctx context.Context, keys []string) error { return nil }

func (b *batch) SaleDates(ctx context.Context, keys []string) (map[string]sql.NullTime, error) {
	b.sink.mu.RLock()
	defer b.sink.mu.RUnlock()

	out := make(map[string]sql.NullTime, len(keys))
	for _, k := range keys {
		r, ok := b.sink.clean[k]
		if !ok {
			continue
		}
		nt := sql.NullTime{}
		if len(r.Values) > 1 {
			if d, ok := r.Values[1].(sql.NullTime); ok {
				nt = d
			}
		}
		out[k] = nt
	}
	return out, nil
}

func (b *batch) UpsertRaw(ctx context.Context, rows []pos.RawRow) (int64, error) {
	for _, r := range rows {
		b.raw[r.SaleID] = r
	}
	return int64(len(rows)), nil
}

func (b *batch) UpsertClean(ctx context.Context, rows []pos.CleanRow) (int64, error) {
	for _, r := range rows {
		b.clean[r.SaleID] = r
	}
	return int64(len(rows)), nil
}

func (b *batch) Commit(ctx context.Context) error {
	b.sink.mu.Lock()
	defer b.sink.mu.Unlock()
	for k, r := range b.raw {
		b.sink.raw[k] = r
	}
	for k, r := range b.clean {
		b.sink.clean[k] = r
	}
	b.raw, b.clean = nil, nil
	return nil
}

func (b *batch) Rollback(ctx context.Context) error {
	b.raw, b.clean = nil, nil
	return nil
}
