// Package realtime relays per-match hints between connected clients.
// Nothing sent here is authoritative: clients use it to render quickly and
// resync from the HTTP API, which owns the match state.
package realtime

import (
	"encoding/json"
	"time"
)

const (
	TypeAction   = "ACTION"
	TypeSync     = "SYNC"
	TypePresence = "PRESENCE"

	EventJoin  = "join"
	EventLeave = "leave"

	// ServerSenderID stamps envelopes published by the server itself.
	ServerSenderID = "server"
)

// ChannelName is the topic for one match.
func ChannelName(matchID string) string {
	return "pvp:match:" + matchID
}

type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

type Presence struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	ConnID string `json:"connId"`
}

// Envelope is what travels on a match topic.
type Envelope struct {
	Type     string          `json:"type"`
	SenderID string          `json:"senderId"`
	ActionID string          `json:"actionId,omitempty"`
	Event    string          `json:"event,omitempty"`
	Presence *Presence       `json:"presence,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SentAt   time.Time       `json:"sentAt"`
}
