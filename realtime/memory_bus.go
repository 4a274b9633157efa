package realtime

import (
	"context"
	"sync"
	"time"
)

const subscriptionBuffer = 64

// MemoryBus fans envelopes out inside one process.
type MemoryBus struct {
	mu        sync.RWMutex
	subs      map[string]map[*memorySub]struct{}
	presences map[string]map[string]Presence
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:      make(map[string]map[*memorySub]struct{}),
		presences: make(map[string]map[string]Presence),
	}
}

type memorySub struct {
	bus   *MemoryBus
	topic string
	ch    chan Envelope
	once  sync.Once
}

func (s *memorySub) C() <-chan Envelope { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if set, ok := s.bus.subs[s.topic]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.bus.subs, s.topic)
			}
		}
		close(s.ch)
		s.bus.mu.Unlock()
	})
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscription, error) {
	sub := &memorySub{bus: b, topic: topic, ch: make(chan Envelope, subscriptionBuffer)}
	b.mu.Lock()
	set, ok := b.subs[topic]
	if !ok {
		set = make(map[*memorySub]struct{})
		b.subs[topic] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

// Publish never blocks: a subscriber with a full buffer misses the envelope.
func (b *MemoryBus) Publish(_ context.Context, topic string, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[topic] {
		select {
		case sub.ch <- env:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) TrackPresence(ctx context.Context, topic string, p Presence) (func(), error) {
	b.mu.Lock()
	set, ok := b.presences[topic]
	if !ok {
		set = make(map[string]Presence)
		b.presences[topic] = set
	}
	set[p.ConnID] = p
	b.mu.Unlock()

	_ = b.Publish(ctx, topic, presenceEnvelope(p, EventJoin))

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.presences[topic]; ok {
				delete(set, p.ConnID)
				if len(set) == 0 {
					delete(b.presences, topic)
				}
			}
			b.mu.Unlock()
			_ = b.Publish(context.Background(), topic, presenceEnvelope(p, EventLeave))
		})
	}, nil
}

func (b *MemoryBus) Presences(_ context.Context, topic string) ([]Presence, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Presence, 0, len(b.presences[topic]))
	for _, p := range b.presences[topic] {
		out = append(out, p)
	}
	return out, nil
}

// subscribers is used by tests to check teardown.
func (b *MemoryBus) subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func presenceEnvelope(p Presence, event string) Envelope {
	pp := p
	return Envelope{Type: TypePresence, SenderID: p.UserID, Event: event, Presence: &pp, SentAt: time.Now().UTC()}
}
