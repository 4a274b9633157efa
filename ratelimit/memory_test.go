package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryLedgerFixedWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	l := NewMemoryLedger(clock.Now)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		w, err := l.Hit(ctx, "1.2.3.4", time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if w.Count != i || !w.ResetAt.Equal(time.Unix(160, 0)) {
			t.Fatalf("hit %d: %+v", i, w)
		}
	}

	clock.Advance(time.Minute)
	w, _ := l.Hit(ctx, "1.2.3.4", time.Minute)
	if w.Count != 1 || !w.ResetAt.Equal(time.Unix(220, 0)) {
		t.Fatalf("window did not reset: %+v", w)
	}
}

func TestMemoryLedgerKeysAreIndependent(t *testing.T) {
	l := NewMemoryLedger(nil)
	ctx := context.Background()
	l.Hit(ctx, "a", time.Minute)
	l.Hit(ctx, "a", time.Minute)
	w, _ := l.Hit(ctx, "b", time.Minute)
	if w.Count != 1 {
		t.Fatalf("b count = %d", w.Count)
	}
}

func TestMemoryLedgerPrune(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := NewMemoryLedger(clock.Now)
	ctx := context.Background()
	l.Hit(ctx, "old", time.Second)
	clock.Advance(2 * time.Second)
	l.Hit(ctx, "new", time.Minute)

	if n := l.Prune(); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d", l.Len())
	}
}

func TestMemoryLedgerConcurrentHits(t *testing.T) {
	l := NewMemoryLedger(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Hit(ctx, "k", time.Minute)
		}()
	}
	wg.Wait()
	w, _ := l.Hit(ctx, "k", time.Minute)
	if w.Count != 51 {
		t.Fatalf("count = %d, want 51", w.Count)
	}
}
