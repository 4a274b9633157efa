package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionIssuer = "resistance-server"

// Session is the trusted identity behind a request.
type Session struct {
	UserID    string
	Wallet    string
	ExpiresAt time.Time
}

type sessionClaims struct {
	UserID string `json:"uid"`
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// SessionAuthority issues and verifies HS256 session tokens.
type SessionAuthority struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
}

func NewSessionAuthority(secret string, ttl time.Duration, clock Clock) *SessionAuthority {
	return &SessionAuthority{secret: []byte(secret), ttl: ttl, clock: clock}
}

func (a *SessionAuthority) TTL() time.Duration { return a.ttl }

// Issue signs a token binding userID to wallet.
func (a *SessionAuthority) Issue(userID, wallet string) (string, time.Time, error) {
	if userID == "" || wallet == "" {
		return "", time.Time{}, errors.New("session needs user id and wallet")
	}
	now := a.clock.now()
	exp := now.Add(a.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		UserID: userID,
		Wallet: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return s, exp, nil
}

// Verify never panics and fails closed: any malformed, expired or foreign
// token yields (nil, false).
func (a *SessionAuthority) Verify(token string) (s *Session, ok bool) {
	defer func() {
		if recover() != nil {
			s, ok = nil, false
		}
	}()
	if token == "" {
		return nil, false
	}

	var c sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.now),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if c.UserID == "" || c.Wallet == "" || c.Subject != c.UserID {
		return nil, false
	}
	return &Session{UserID: c.UserID, Wallet: c.Wallet, ExpiresAt: c.ExpiresAt.Time}, true
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" for any other scheme.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
