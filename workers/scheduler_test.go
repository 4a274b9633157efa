package workers

import (
	"sync/atomic"
	"testing"
	"time"
)

type countingPruner struct{ calls atomic.Int32 }

func (p *countingPruner) Prune() int {
	p.calls.Add(1)
	return 1
}

func TestSchedulerRunsPruneJob(t *testing.T) {
	p := &countingPruner{}
	s, err := StartScheduler(SchedulerConfig{PruneEvery: 20 * time.Millisecond}, p, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = s.Shutdown() }()

	deadline := time.Now().Add(2 * time.Second)
	for p.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("prune job never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
