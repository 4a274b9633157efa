package middleware

import (
	"crypto/subtle"

	"resistance-server/services"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// ServiceToken guards internal routes called by trusted backends such as
// matchmaking.
func ServiceToken(expected string) fiber.Handler {
	if expected == "" {
		log.WithField("component", "gateway").Fatal("GAME_SERVICE_TOKEN is not set")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.WithFields(log.Fields{"component": "gateway", "path": c.Path()}).Warn("missing Authorization header")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "service token missing",
			})
		}

		token := services.BearerToken(authHeader)
		if token == "" {
			// raw token without the scheme
			token = authHeader
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			log.WithFields(log.Fields{"component": "gateway", "path": c.Path()}).Warn("invalid service token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid service token",
			})
		}
		return c.Next()
	}
}
