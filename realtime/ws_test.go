package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"resistance-server/services"

	"github.com/gorilla/websocket"
)

type fakeSessions map[string]string

func (f fakeSessions) Verify(token string) (*services.Session, bool) {
	uid, ok := f[token]
	if !ok {
		return nil, false
	}
	return &services.Session{UserID: uid}, true
}

type fakeMatches struct{}

func servicesView(id string) services.MatchView {
	turn := "user-a"
	return services.MatchView{
		MatchID:      id,
		Status:       "ACTIVE",
		AttackerID:   "user-a",
		DefenderID:   "user-b",
		AttackerHP:   100,
		DefenderHP:   100,
		TurnPlayerID: &turn,
		Turn:         1,
	}
}

func (fakeMatches) Snapshot(_ context.Context, viewer, id string) (*services.MatchView, error) {
	if id != testMatch {
		return nil, &services.Error{Kind: services.KindNotFound, Reason: "match_not_found"}
	}
	v := servicesView(id)
	switch viewer {
	case "user-a":
		v.YourRole = "attacker"
	case "user-b":
		v.YourRole = "defender"
	default:
		v.YourRole = "spectator"
	}
	return &v, nil
}

func newTestServer(t *testing.T, cfg ServerConfig) *httptest.Server {
	t.Helper()
	cfg.CookieName = "resistance_session"
	srv := NewServer(cfg, NewMemoryBus(), fakeSessions{"tok-a": "user-a", "tok-b": "user-b", "tok-w": "watcher"}, fakeMatches{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server, token, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime?" + query
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func mustDial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := dial(t, ts, token, "matchId="+testMatch)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, typ string) Inbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var in Inbound
		if err := conn.ReadJSON(&in); err != nil {
			t.Fatalf("read %s: %v", typ, err)
		}
		if in.Type == typ {
			return in
		}
	}
}

func TestServerRejectsMissingSession(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})
	_, resp, err := dial(t, ts, "", "matchId="+testMatch)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestServerRejectsUnknownMatch(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})
	_, resp, err := dial(t, ts, "tok-a", "matchId=nope")
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got err=%v resp=%+v", err, resp)
	}
}

func TestServerSendsSnapshotFirst(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})
	conn := mustDial(t, ts, "tok-a")

	in := readFrame(t, conn, TypeSync)
	if in.SenderID != ServerSenderID {
		t.Fatalf("expected server snapshot, got sender %q", in.SenderID)
	}
	var body syncPayload
	if err := json.Unmarshal(in.Payload, &body); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if body.Reason != "snapshot" || body.Match.YourRole != "attacker" {
		t.Fatalf("unexpected snapshot %+v", body)
	}
}

func TestServerRelaysActionsBetweenPlayers(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})
	a := mustDial(t, ts, "tok-a")
	b := mustDial(t, ts, "tok-b")

	// Wait until a has seen b arrive so both subscriptions are live.
	for {
		in := readFrame(t, a, TypePresence)
		if in.Peer == PeerOpponent {
			break
		}
	}

	frame := map[string]any{"type": TypeAction, "actionId": "m-1", "payload": map[string]string{"move": "STRIKE"}}
	if err := a.WriteJSON(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
	in := readFrame(t, b, TypeAction)
	if in.SenderID != "user-a" || in.ActionID != "m-1" {
		t.Fatalf("unexpected relayed action %+v", in.Envelope)
	}
}

func TestServerSpectatorFramesAreDropped(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})
	a := mustDial(t, ts, "tok-a")
	w := mustDial(t, ts, "tok-w")

	for {
		in := readFrame(t, a, TypePresence)
		if in.Peer == PeerSpectator {
			break
		}
	}
	if err := w.WriteJSON(map[string]any{"type": TypeAction, "actionId": "w-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	b := mustDial(t, ts, "tok-b")
	for {
		in := readFrame(t, a, TypePresence)
		if in.Peer == PeerOpponent {
			break
		}
	}
	if err := b.WriteJSON(map[string]any{"type": TypeAction, "actionId": "b-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if in := readFrame(t, a, TypeAction); in.SenderID != "user-b" {
		t.Fatalf("spectator action reached player: %+v", in.Envelope)
	}
}

func TestServerLimitsConnectionsPerIP(t *testing.T) {
	ts := newTestServer(t, ServerConfig{MaxConnPerIP: 1})
	_ = mustDial(t, ts, "tok-a")

	_, resp, err := dial(t, ts, "tok-b", "matchId="+testMatch)
	if err == nil || resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got err=%v resp=%+v", err, resp)
	}
}
