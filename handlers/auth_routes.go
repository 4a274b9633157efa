package handlers

import (
	"time"

	"resistance-server/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAuthRoutes(app fiber.Router, authService *services.AuthService, guards Guards, cookie CookieConfig) {
	// Exchange a signed login message for a session cookie.
	app.Post("/auth/session", guards.RateLimit, func(c *fiber.Ctx) error {
		var req services.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := authService.Login(c.UserContext(), req)
		if err != nil {
			return writeError(c, "auth.session", err)
		}

		c.Cookie(&fiber.Cookie{
			Name:     cookie.Name,
			Value:    res.Token,
			Path:     "/",
			Expires:  res.ExpiresAt,
			HTTPOnly: true,
			Secure:   cookie.Secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.JSON(fiber.Map{
			"userId":    res.Player.ID,
			"wallet":    res.Player.Wallet,
			"expiresAt": res.ExpiresAt,
			"player":    res.Player,
		})
	})

	app.Post("/auth/logout", func(c *fiber.Ctx) error {
		c.Cookie(&fiber.Cookie{
			Name:     cookie.Name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HTTPOnly: true,
			Secure:   cookie.Secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.SendStatus(fiber.StatusNoContent)
	})
}
