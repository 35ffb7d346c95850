package keylock

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLock_SerializesOverlappingSets(t *testing.T) {
	t.Parallel()

	s := New()
	var inside, maxInside int32
	var wg sync.WaitGroup

	sets := [][]string{{"a", "b"}, {"b", "c"}, {"c", "b", "a"}, {"b"}}
	for i := 0; i < 40; i++ {
		keys := sets[i%len(sets)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := s.Lock(context.Background(), keys)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			// every set shares a key with every other set, so at most one holder
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("max concurrent holders=%d want 1", maxInside)
	}
	if s.Len() != 0 {
		t.Fatalf("locks leaked: %d", s.Len())
	}
}

func TestLock_ContextCancel(t *testing.T) {
	t.Parallel()

	s := New()
	unlock, err := s.Lock(context.Background(), []string{"k"})
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Lock(ctx, []string{"j", "k"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}

	unlock()
	unlock() // second call is a no-op
	if s.Len() != 0 {
		t.Fatalf("locks leaked: %d", s.Len())
	}

	// j must have been released by the failed attempt
	u2, err := s.Lock(context.Background(), []string{"j"})
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	u2()
}

func TestDistinctSorted(t *testing.T) {
	t.Parallel()

	got := distinctSorted([]string{"b", "a", "b", "c", "a"})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("got %q", got)
	}
	if got := distinctSorted(nil); len(got) != 0 {
		t.Fatalf("got %q", got)
	}
}
