package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// RequestLogger writes one structured line per request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		entry := log.WithFields(log.Fields{
			"component":  "http",
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"ip":         c.IP(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if uid := UserID(c); uid != "" {
			entry = entry.WithField("user_id", uid)
		}
		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Info("request rejected")
		default:
			entry.Debug("request served")
		}
		return err
	}
}
