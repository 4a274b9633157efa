package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	dedupeWindow  = 256
	inboundBuffer = 64

	PeerSelf      = "self"
	PeerOpponent  = "opponent"
	PeerSpectator = "spectator"
)

var ErrChannelClosed = errors.New("realtime: channel closed")

// Inbound is an envelope delivered to one endpoint. Peer is set on
// presence events.
type Inbound struct {
	Envelope
	Peer string `json:"peer,omitempty"`
}

// MatchChannel is one endpoint's view of a match topic.
type MatchChannel struct {
	bus     Bus
	matchID string
	topic   string
	localID string
	role    Role
	connID  string

	sub     Subscription
	untrack func()
	events  chan Inbound
	done    chan struct{}
	once    sync.Once
	seen    *actionWindow
	now     func() time.Time
}

// OpenMatchChannel subscribes to the match topic and announces presence.
func OpenMatchChannel(ctx context.Context, bus Bus, matchID, localID string, role Role) (*MatchChannel, error) {
	topic := ChannelName(matchID)
	sub, err := bus.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	c := &MatchChannel{
		bus:     bus,
		matchID: matchID,
		topic:   topic,
		localID: localID,
		role:    role,
		connID:  uuid.NewString(),
		sub:     sub,
		events:  make(chan Inbound, inboundBuffer),
		done:    make(chan struct{}),
		seen:    newActionWindow(dedupeWindow),
		now:     func() time.Time { return time.Now().UTC() },
	}
	untrack, err := bus.TrackPresence(ctx, topic, Presence{UserID: localID, Role: role, ConnID: c.connID})
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	c.untrack = untrack
	go c.pump()
	return c, nil
}

func (c *MatchChannel) Events() <-chan Inbound { return c.events }
func (c *MatchChannel) Role() Role             { return c.role }
func (c *MatchChannel) MatchID() string        { return c.matchID }

// SendAction broadcasts a proposed move or chat message. Spectators send
// nothing.
func (c *MatchChannel) SendAction(ctx context.Context, actionID string, payload json.RawMessage) error {
	if actionID == "" {
		actionID = uuid.NewString()
	}
	return c.send(ctx, Envelope{Type: TypeAction, ActionID: actionID, Payload: payload})
}

// SendSync broadcasts a state snapshot for peers catching up.
func (c *MatchChannel) SendSync(ctx context.Context, payload json.RawMessage) error {
	return c.send(ctx, Envelope{Type: TypeSync, Payload: payload})
}

func (c *MatchChannel) send(ctx context.Context, env Envelope) error {
	if c.role == RoleSpectator {
		return nil
	}
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	env.SenderID = c.localID
	env.SentAt = c.now()
	return c.bus.Publish(ctx, c.topic, env)
}

// Close releases the subscription and presence. Safe to call repeatedly.
func (c *MatchChannel) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.sub.Close()
		c.untrack()
	})
}

func (c *MatchChannel) pump() {
	defer close(c.events)
	for {
		select {
		case <-c.done:
			return
		case env, ok := <-c.sub.C():
			if !ok {
				return
			}
			in, keep := c.filter(env)
			if !keep {
				continue
			}
			select {
			case c.events <- in:
			case <-c.done:
				return
			}
		}
	}
}

func (c *MatchChannel) filter(env Envelope) (Inbound, bool) {
	in := Inbound{Envelope: env}
	switch env.Type {
	case TypeSync:
		if env.SenderID == c.localID {
			return in, false
		}
	case TypeAction:
		if env.ActionID != "" && !c.seen.add(env.SenderID+"/"+env.ActionID) {
			return in, false
		}
	case TypePresence:
		if env.Presence == nil {
			return in, false
		}
		switch {
		case env.Presence.UserID == c.localID:
			in.Peer = PeerSelf
		case env.Presence.Role == RoleSpectator:
			in.Peer = PeerSpectator
		default:
			in.Peer = PeerOpponent
		}
	default:
		return in, false
	}
	return in, true
}

// actionWindow remembers the most recent keys in arrival order.
type actionWindow struct {
	size  int
	keys  map[string]struct{}
	order []string
}

func newActionWindow(size int) *actionWindow {
	return &actionWindow{size: size, keys: make(map[string]struct{}, size)}
}

// add reports false if key was already seen.
func (w *actionWindow) add(key string) bool {
	if _, ok := w.keys[key]; ok {
		return false
	}
	if len(w.order) >= w.size {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.keys, oldest)
	}
	w.keys[key] = struct{}{}
	w.order = append(w.order, key)
	return true
}
