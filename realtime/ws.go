package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"resistance-server/services"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 5120
	sendBuffer     = 32

	TypeError = "ERROR"
)

// SessionVerifier resolves a session token. It must fail closed.
type SessionVerifier interface {
	Verify(token string) (*services.Session, bool)
}

// Snapshotter loads the authoritative view of a match for a viewer.
type Snapshotter interface {
	Snapshot(ctx context.Context, viewerID, matchID string) (*services.MatchView, error)
}

type ServerConfig struct {
	AllowedOrigins   []string
	CookieName       string
	MaxConnPerIP     int
	MessagesPerSec   float64
	HandshakeTimeout time.Duration
}

// Server upgrades /realtime requests and bridges each socket to its match
// channel.
type Server struct {
	cfg      ServerConfig
	bus      Bus
	sessions SessionVerifier
	matches  Snapshotter
	upgrader websocket.Upgrader
	slots    *peerSlots
}

func NewServer(cfg ServerConfig, bus Bus, sessions SessionVerifier, matches Snapshotter) *Server {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.MessagesPerSec <= 0 {
		cfg.MessagesPerSec = 10
	}
	return &Server{
		cfg:      cfg,
		bus:      bus,
		sessions: sessions,
		matches:  matches,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: cfg.HandshakeTimeout,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
		slots: newPeerSlots(cfg.MaxConnPerIP),
	}
}

// Handler mounts the socket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/realtime", s)
	return mux
}

type clientFrame struct {
	Type     string          `json:"type"`
	ActionID string          `json:"actionId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	peerIP := remoteAddr(r)
	logger := log.WithFields(log.Fields{"component": "realtime.ws", "peer": peerIP})

	sess, ok := s.sessions.Verify(sessionToken(r, s.cfg.CookieName))
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	view, err := s.matches.Snapshot(r.Context(), sess.UserID, r.URL.Query().Get("matchId"))
	if err != nil {
		var se *services.Error
		if errors.As(err, &se) && se.Kind == services.KindNotFound {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}
		if errors.As(err, &se) && se.Kind == services.KindValidation {
			http.Error(w, se.Reason, http.StatusBadRequest)
			return
		}
		logger.WithError(err).Error("snapshot failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	role := RolePlayer
	if view.YourRole == PeerSpectator || r.URL.Query().Get("role") == string(RoleSpectator) {
		role = RoleSpectator
	}

	release, ok := s.slots.take(peerIP)
	if !ok {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release()
		logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	ch, err := OpenMatchChannel(context.Background(), s.bus, view.MatchID, sess.UserID, role)
	if err != nil {
		release()
		logger.WithError(err).Error("open match channel failed")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "channel unavailable"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	c := &client{
		conn:    conn,
		ch:      ch,
		send:    make(chan []byte, sendBuffer),
		closed:  make(chan struct{}),
		release: release,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSec), max(1, int(s.cfg.MessagesPerSec))),
		logger:  logger.WithFields(log.Fields{"match_id": view.MatchID, "user_id": sess.UserID, "role": role}),
	}
	if snap, err := json.Marshal(syncPayload{Reason: "snapshot", Match: *view}); err == nil {
		c.enqueue(Inbound{Envelope: Envelope{Type: TypeSync, SenderID: ServerSenderID, Payload: snap, SentAt: time.Now().UTC()}})
	}
	c.logger.Info("realtime connection established")
	c.start()
}

type client struct {
	conn      *websocket.Conn
	ch        *MatchChannel
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	release   func()
	limiter   *rate.Limiter
	logger    *log.Entry
}

func (c *client) start() {
	go c.writePump()
	go c.forward()
	go c.readPump()
}

func (c *client) forward() {
	for in := range c.ch.Events() {
		c.enqueue(in)
	}
	c.close("channel closed")
}

func (c *client) enqueue(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	case <-c.closed:
	default:
		c.logger.Debug("dropping frame for slow consumer")
	}
}

func (c *client) readPump() {
	defer c.close("client closed connection")

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Debug("unexpected close")
			}
			return
		}
		if !c.limiter.Allow() {
			c.enqueue(errorFrame{Type: TypeError, Error: "rate_limited"})
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.enqueue(errorFrame{Type: TypeError, Error: "invalid_message"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		switch frame.Type {
		case TypeAction:
			err = c.ch.SendAction(ctx, frame.ActionID, frame.Payload)
		case TypeSync:
			err = c.ch.SendSync(ctx, frame.Payload)
		default:
			c.enqueue(errorFrame{Type: TypeError, Error: "unsupported_type"})
		}
		cancel()
		if err != nil {
			c.logger.WithError(err).Warn("publish failed")
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close("writePump exit")
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// close tears the socket down once. The channel goes with it so the
// subscription never outlives the connection.
func (c *client) close(reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ch.Close()
		_ = c.conn.Close()
		if c.release != nil {
			c.release()
		}
		c.logger.WithField("reason", reason).Info("realtime connection closed")
	})
}
