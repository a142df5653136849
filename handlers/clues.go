package handlers

import (
	"github.com/gofiber/fiber/v2"

	"luminar-api/middleware"
)

type submitRequest struct {
	Answer string `json:"answer"`
}

func setupClueRoutes(v1 fiber.Router, auth fiber.Handler, deps Deps) {
	clues := v1.Group("/clues", auth, middleware.BotCheck(deps.Challenge, deps.Replay))

	clues.Post("/:id/submit", func(c *fiber.Ctx) error {
		clueID, err := parseID(c, "id")
		if err != nil {
			return err
		}
		var req submitRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		result, err := deps.Clues.Submit(c.UserContext(), clueID, req.Answer, middleware.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(result)
	})
}
