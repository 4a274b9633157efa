package middleware

import (
	"strconv"
	"time"

	"resistance-server/ratelimit"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// IPRateLimit counts requests per client IP in fixed windows. A ledger
// failure lets the request through.
func IPRateLimit(ledger ratelimit.Ledger, limit int64, window time.Duration, now func() time.Time) fiber.Handler {
	if now == nil {
		now = time.Now
	}
	return func(c *fiber.Ctx) error {
		ip := c.IP()
		w, err := ledger.Hit(c.UserContext(), ip, window)
		if err != nil {
			log.WithFields(log.Fields{"component": "ratelimit", "ip": ip}).WithError(err).Warn("ledger unavailable, allowing request")
			return c.Next()
		}
		if w.Count > limit {
			retry := w.ResetAt.Sub(now())
			if retry < 0 {
				retry = 0
			}
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(int64((retry+time.Second-1)/time.Second), 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":        "rate_limited",
				"retryAfterMs": retry.Milliseconds(),
			})
		}
		return c.Next()
	}
}
