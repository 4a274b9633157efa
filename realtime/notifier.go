package realtime

import (
	"context"
	"encoding/json"
	"time"

	"resistance-server/services"

	log "github.com/sirupsen/logrus"
)

// syncPayload is the server's SYNC body: the authoritative view plus what
// caused it.
type syncPayload struct {
	Reason string             `json:"reason"`
	Match  services.MatchView `json:"match"`
}

// Notifier publishes accepted match transitions as server SYNC envelopes.
type Notifier struct {
	bus Bus
}

func NewNotifier(bus Bus) *Notifier {
	return &Notifier{bus: bus}
}

func (n *Notifier) MatchUpdated(ctx context.Context, view services.MatchView, reason string) {
	raw, err := json.Marshal(syncPayload{Reason: reason, Match: view})
	if err != nil {
		return
	}
	env := Envelope{Type: TypeSync, SenderID: ServerSenderID, Payload: raw, SentAt: time.Now().UTC()}
	if err := n.bus.Publish(ctx, ChannelName(view.MatchID), env); err != nil {
		log.WithFields(log.Fields{"component": "realtime.notify", "match_id": view.MatchID}).WithError(err).Warn("publish failed")
	}
}
