// Package keylock serializes work on overlapping business-key sets within a
// process.
package keylock

import (
	"context"
	"sort"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// Set hands out per-key locks. Keys are always acquired in sorted order, so
// two callers locking overlapping key sets cannot deadlock.
type Set struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New returns an empty Set.
func New() *Set {
	return &Set{locks: make(map[string]*entry)}
}

// Lock blocks until every key is held or ctx is done. The returned function
// releases all keys; it must be called exactly once.
func (s *Set) Lock(ctx context.Context, keys []string) (func(), error) {
	sorted := distinctSorted(keys)
	held := make([]string, 0, len(sorted))

	for _, k := range sorted {
		e := s.acquireRef(k)
		select {
		case e.sem <- struct{}{}:
			held = append(held, k)
		case <-ctx.Done():
			s.releaseRef(k, false)
			s.unlock(held)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(func() { s.unlock(held) }) }, nil
}

func (s *Set) unlock(held []string) {
	for i := len(held) - 1; i >= 0; i-- {
		s.releaseRef(held[i], true)
	}
}

func (s *Set) acquireRef(k string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.locks[k]
	if e == nil {
		e = &entry{sem: make(chan struct{}, 1)}
		s.locks[k] = e
	}
	e.refs++
	return e
}

func (s *Set) releaseRef(k string, held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.locks[k]
	if e == nil {
		return
	}
	if held {
		<-e.sem
	}
	e.refs--
	if e.refs == 0 {
		delete(s.locks, k)
	}
}

// Len reports how many keys currently have holders or waiters.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func distinctSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	w := 0
	for i, k := range out {
		if i > 0 && k == out[w-1] {
			continue
		}
		out[w] = k
		w++
	}
	return out[:w]
}
