package handlers

import (
	"resistance-server/middleware"
	"resistance-server/services"

	"github.com/gofiber/fiber/v2"
)

type matchRequest struct {
	MatchID string `json:"matchId"`
}

func SetupPvpRoutes(app fiber.Router, matchService *services.MatchService, guards Guards) {
	pvp := app.Group("/pvp")

	pvp.Post("/forfeit", guards.RateLimit, guards.Session, func(c *fiber.Ctx) error {
		var req matchRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := matchService.Forfeit(c.UserContext(), middleware.UserID(c), req.MatchID)
		if err != nil {
			return writeError(c, "pvp.forfeit", err)
		}
		return c.JSON(res)
	})

	pvp.Post("/turn-timeout", guards.RateLimit, guards.Session, func(c *fiber.Ctx) error {
		var req matchRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := matchService.CheckTurnTimeout(c.UserContext(), middleware.UserID(c), req.MatchID)
		if err != nil {
			return writeError(c, "pvp.timeout", err)
		}
		return c.JSON(res)
	})

	pvp.Post("/move", guards.RateLimit, guards.Session, func(c *fiber.Ctx) error {
		var req services.MoveRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := matchService.ApplyMove(c.UserContext(), middleware.UserID(c), req)
		if err != nil {
			return writeError(c, "pvp.move", err)
		}
		return c.JSON(res)
	})

	pvp.Get("/matches/:id", guards.Session, func(c *fiber.Ctx) error {
		view, err := matchService.Snapshot(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, "pvp.snapshot", err)
		}
		return c.JSON(view)
	})

	// Matchmaking lives in another service and calls in here.
	app.Post("/internal/pvp/matches", guards.RateLimit, guards.ServiceToken, func(c *fiber.Ctx) error {
		var req services.CreateMatchRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		view, err := matchService.CreateMatch(c.UserContext(), req)
		if err != nil {
			return writeError(c, "pvp.create", err)
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	})
}
