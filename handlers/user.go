package handlers

import (
	"github.com/gofiber/fiber/v2"

	"luminar-api/middleware"
)

func setupUserRoutes(v1 fiber.Router, auth fiber.Handler, deps Deps) {
	user := v1.Group("/user", auth)

	user.Get("/progress", func(c *fiber.Ctx) error {
		progress, err := deps.Progress.Progress(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(progress)
	})
}
