// Package ratelimit keeps fixed-window request counters per key (client IP).
// Counters are ephemeral: created on first use, reset once their window expires.
package ratelimit

import (
	"context"
	"time"
)

// Window is the state of one key after a hit.
type Window struct {
	Count   int64
	ResetAt time.Time
}

// Ledger counts hits. MemoryLedger serves a single instance; RedisLedger is
// shared by every instance behind the load balancer.
type Ledger interface {
	Hit(ctx context.Context, key string, window time.Duration) (Window, error)
}
