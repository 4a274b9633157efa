package middleware

import (
	"resistance-server/services"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

const (
	LocalUserID = "user_id"
	LocalWallet = "wallet"
)

// SessionVerifier resolves a session token and fails closed.
type SessionVerifier interface {
	Verify(token string) (*services.Session, bool)
}

// RequireSession attaches the verified caller to the request. Handlers must
// take identity from here and never from the body.
func RequireSession(sessions SessionVerifier, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(cookieName)
		if token == "" {
			token = services.BearerToken(c.Get(fiber.HeaderAuthorization))
		}
		sess, ok := sessions.Verify(token)
		if !ok {
			log.WithFields(log.Fields{"component": "auth", "path": c.Path(), "ip": c.IP()}).Debug("rejected request without valid session")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		c.Locals(LocalUserID, sess.UserID)
		c.Locals(LocalWallet, sess.Wallet)
		return c.Next()
	}
}

// UserID returns the verified caller set by RequireSession.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
