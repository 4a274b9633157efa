package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	redisTopicPrefix = "resistance:"
	presenceTTL      = 2 * time.Hour
)

// RedisBus shares match topics across server instances through Redis pub/sub.
// Presence is kept in a hash per topic keyed by connection id.
type RedisBus struct {
	rdb redis.UniversalClient
}

func NewRedisBus(rdb redis.UniversalClient) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func presenceKey(topic string) string {
	return redisTopicPrefix + topic + ":presence"
}

type redisSub struct {
	ps     *redis.PubSub
	ch     chan Envelope
	once   sync.Once
	cancel context.CancelFunc
}

func (s *redisSub) C() <-chan Envelope { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ps.Close()
	})
	return err
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, redisTopicPrefix+topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	subCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSub{ps: ps, ch: make(chan Envelope, subscriptionBuffer), cancel: cancel}

	go func() {
		defer close(sub.ch)
		msgs := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.WithFields(log.Fields{"component": "realtime.redis", "topic": topic}).WithError(err).Debug("dropping malformed envelope")
					continue
				}
				select {
				case sub.ch <- env:
				default:
				}
			}
		}
	}()
	return sub, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, redisTopicPrefix+topic, raw).Err()
}

func (b *RedisBus) TrackPresence(ctx context.Context, topic string, p Presence) (func(), error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	key := presenceKey(topic)
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, key, p.ConnID, raw)
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("track presence: %w", err)
	}
	_ = b.Publish(ctx, topic, presenceEnvelope(p, EventJoin))

	var once sync.Once
	return func() {
		once.Do(func() {
			bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := b.rdb.HDel(bg, key, p.ConnID).Err(); err != nil {
				log.WithFields(log.Fields{"component": "realtime.redis", "topic": topic}).WithError(err).Warn("presence untrack failed")
			}
			_ = b.Publish(bg, topic, presenceEnvelope(p, EventLeave))
		})
	}, nil
}

func (b *RedisBus) Presences(ctx context.Context, topic string) ([]Presence, error) {
	vals, err := b.rdb.HGetAll(ctx, presenceKey(topic)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Presence, 0, len(vals))
	for _, v := range vals {
		var p Presence
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
