package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "resistance:ratelimit:"

type RedisLedger struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func NewRedisLedger(rdb redis.UniversalClient) *RedisLedger {
	return &RedisLedger{rdb: rdb, now: time.Now}
}

// Hit increments the key and arms its expiry on first use, in one round trip.
func (l *RedisLedger) Hit(ctx context.Context, key string, window time.Duration) (Window, error) {
	k := redisKeyPrefix + key
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Window{}, fmt.Errorf("ratelimit hit %s: %w", key, err)
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = window
	}
	return Window{Count: incr.Val(), ResetAt: l.now().Add(remaining)}, nil
}
