package handlers

import (
	"resistance-server/middleware"
	"resistance-server/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPlayerRoutes(app fiber.Router, syncService *services.SyncService, guards Guards) {
	app.Get("/player/me", guards.Session, func(c *fiber.Ctx) error {
		p, err := syncService.Profile(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeError(c, "player.me", err)
		}
		return c.JSON(p)
	})

	app.Post("/player/sync", guards.RateLimit, guards.Session, func(c *fiber.Ctx) error {
		var req services.SyncRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := syncService.Sync(c.UserContext(), middleware.UserID(c), req)
		if err != nil {
			return writeError(c, "sync.gateway", err)
		}
		return c.JSON(res)
	})

	app.Post("/mission/complete", guards.RateLimit, guards.Session, func(c *fiber.Ctx) error {
		var req services.MissionRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := syncService.CompleteMission(c.UserContext(), middleware.UserID(c), req)
		if err != nil {
			return writeError(c, "mission.complete", err)
		}
		return c.JSON(res)
	})
}
