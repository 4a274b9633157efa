package handlers

import (
	"errors"
	"strconv"
	"time"

	"resistance-server/services"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// statusFor maps a service error kind to its HTTP status.
func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case services.KindForbidden:
		return fiber.StatusForbidden
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	case services.KindTooEarly:
		return fiber.StatusTooEarly
	case services.KindRateLimited:
		return fiber.StatusTooManyRequests
	}
	return fiber.StatusInternalServerError
}

// writeError renders err as {"error": reason, ...} with the hints the
// caller needs to retry or resync.
func writeError(c *fiber.Ctx, component string, err error) error {
	var se *services.Error
	if !errors.As(err, &se) {
		log.WithFields(log.Fields{"component": component, "path": c.Path()}).WithError(err).Error("unhandled error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	status := statusFor(se.Kind)
	body := fiber.Map{"error": se.Reason}
	if se.RetryAfter > 0 {
		body["retryAfterMs"] = se.RetryAfter.Milliseconds()
		c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(int64((se.RetryAfter+time.Second-1)/time.Second), 10))
	}
	if se.WinnerID != "" {
		body["winnerId"] = se.WinnerID
	}
	if se.State != nil {
		body["state"] = se.State
	}
	if status >= fiber.StatusInternalServerError {
		log.WithFields(log.Fields{"component": component, "path": c.Path(), "reason": se.Reason}).WithError(se.Err).Error("request failed")
	}
	return c.Status(status).JSON(body)
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
}
