package handlers

import (
	"resistance-server/middleware"
	"resistance-server/services"

	"github.com/gofiber/fiber/v2"
)

type mintRequest struct {
	IdempotencyKey string `json:"idempotencyKey"`
}

func SetupMintRoutes(app fiber.Router, mintService *services.MintService, guards Guards) {
	app.Post("/mint/attempts", guards.RateLimit, guards.Session, func(c *fiber.Ctx) error {
		var req mintRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		attempt, created, err := mintService.RecordAttempt(c.UserContext(), middleware.UserID(c), req.IdempotencyKey)
		if err != nil {
			return writeError(c, "mint.attempt", err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(attempt)
	})

	// Confirm never fails once a key is present; see MintService.Confirm.
	app.Post("/mint/confirm", guards.RateLimit, func(c *fiber.Ctx) error {
		var req mintRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := mintService.Confirm(c.UserContext(), req.IdempotencyKey)
		if err != nil {
			return writeError(c, "mint.confirm", err)
		}
		return c.JSON(res)
	})
}
