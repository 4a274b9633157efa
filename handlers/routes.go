package handlers

import "github.com/gofiber/fiber/v2"

// Guards are the middleware chains routes pick from.
type Guards struct {
	Session      fiber.Handler
	RateLimit    fiber.Handler
	ServiceToken fiber.Handler
}

// CookieConfig controls the session cookie written at login.
type CookieConfig struct {
	Name   string
	Secure bool
}
