package handlers

import (
	"resistance-server/services"

	"github.com/gofiber/fiber/v2"
)

func SetupFactionRoutes(app fiber.Router, factionService *services.FactionService) {
	app.Get("/faction-war/:streamerId", func(c *fiber.Ctx) error {
		standings, err := factionService.Standings(c.UserContext(), c.Params("streamerId"))
		if err != nil {
			return writeError(c, "faction.standings", err)
		}
		return c.JSON(standings)
	})
}
