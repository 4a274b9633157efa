package services

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strconv"
	"strings"
	"time"

	"resistance-server/models"
	"resistance-server/stores"

	"github.com/mr-tron/base58"
	log "github.com/sirupsen/logrus"
)

const (
	loginMessagePrefix = "resistance-login:"
	loginMaxSkew       = 5 * time.Minute
)

// LoginMessage is the text a wallet signs to open a session.
func LoginMessage(wallet string, at time.Time) string {
	return fmt.Sprintf("%s%s:%d", loginMessagePrefix, wallet, at.UnixMilli())
}

type LoginRequest struct {
	Wallet    string `json:"wallet"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Player    *models.Player
}

// AuthService turns a wallet signature into a session.
type AuthService struct {
	Players  stores.PlayerStore
	Sessions *SessionAuthority
	Clock    Clock
}

func NewAuthService(players stores.PlayerStore, sessions *SessionAuthority, clock Clock) *AuthService {
	return &AuthService{Players: players, Sessions: sessions, Clock: clock}
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	pub, err := base58.Decode(req.Wallet)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, invalid("invalid_wallet")
	}
	sig, err := base58.Decode(req.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return nil, invalid("invalid_signature")
	}

	signedAt, ok := parseLoginMessage(req.Message, req.Wallet)
	if !ok {
		return nil, invalid("invalid_message")
	}
	now := s.Clock.now()
	if skew := now.Sub(signedAt); skew > loginMaxSkew || skew < -loginMaxSkew {
		return nil, &Error{Kind: KindUnauthenticated, Reason: "message_expired"}
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(req.Message), sig) {
		log.WithFields(log.Fields{"component": "auth.login", "wallet": req.Wallet}).Warn("signature mismatch")
		return nil, &Error{Kind: KindUnauthenticated, Reason: "bad_signature"}
	}

	player, err := s.Players.EnsureWallet(ctx, req.Wallet)
	if err != nil {
		return nil, internal("player_lookup_failed", err)
	}
	token, exp, err := s.Sessions.Issue(player.ID, player.Wallet)
	if err != nil {
		return nil, internal("session_issue_failed", err)
	}
	log.WithFields(log.Fields{"component": "auth.login", "user_id": player.ID}).Info("session issued")
	return &LoginResult{Token: token, ExpiresAt: exp, Player: player}, nil
}

func parseLoginMessage(msg, wallet string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(msg, loginMessagePrefix+wallet+":")
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
