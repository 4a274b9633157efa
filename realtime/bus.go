package realtime

import "context"

// Subscription delivers envelopes for one topic until closed.
type Subscription interface {
	C() <-chan Envelope
	Close() error
}

// Bus is the pub/sub provider behind match channels. Delivery is fire and
// forget: an envelope may arrive zero or more times.
type Bus interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Publish(ctx context.Context, topic string, env Envelope) error
	// TrackPresence announces p on topic until the returned func is called.
	TrackPresence(ctx context.Context, topic string, p Presence) (untrack func(), err error)
	Presences(ctx context.Context, topic string) ([]Presence, error)
}
