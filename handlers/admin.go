package handlers

import (
	"github.com/gofiber/fiber/v2"

	"luminar-api/middleware"
)

func setupAdminRoutes(v1 fiber.Router, auth fiber.Handler, adminEmails []string, deps Deps) {
	// 🔒 Admin-only routes
	admin := v1.Group("/admin", auth, middleware.AdminOnly(adminEmails))

	admin.Post("/chapters/:id/end", func(c *fiber.Ctx) error {
		chapterID, err := parseID(c, "id")
		if err != nil {
			return err
		}
		result, err := deps.Chapters.EndChapter(c.UserContext(), chapterID)
		if err != nil {
			return err
		}
		return c.JSON(result)
	})

	admin.Get("/chapters", func(c *fiber.Ctx) error {
		chapters, err := deps.Chapters.ListChapters(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"chapters": chapters})
	})

	admin.Get("/chapters/:id/winners", func(c *fiber.Ctx) error {
		chapterID, err := parseID(c, "id")
		if err != nil {
			return err
		}
		winners, err := deps.Chapters.ListWinners(c.UserContext(), chapterID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"winners": winners})
	})
}
