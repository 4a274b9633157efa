package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int64
	resetAt time.Time
}

type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryLedger(now func() time.Time) *MemoryLedger {
	if now == nil {
		now = time.Now
	}
	return &MemoryLedger{entries: make(map[string]*entry), now: now}
}

func (l *MemoryLedger) Hit(_ context.Context, key string, window time.Duration) (Window, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(window)}
		l.entries[key] = e
	}
	e.count++
	return Window{Count: e.count, ResetAt: e.resetAt}, nil
}

// Prune drops expired windows and reports how many were removed.
func (l *MemoryLedger) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked keys.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
