package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"luminar-api/middleware"
	"luminar-api/services"
)

type claimRequest struct {
	Code string `json:"code" validate:"required"`
	To   string `json:"to" validate:"required"`
}

func setupChapterRoutes(v1 fiber.Router, auth fiber.Handler, deps Deps) {
	chapters := v1.Group("/chapters")

	// 🔓 Public
	chapters.Get("/:id/slots", func(c *fiber.Ctx) error {
		chapterID, err := parseID(c, "id")
		if err != nil {
			return err
		}
		remaining, err := deps.Chapters.Slots(c.UserContext(), chapterID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"remaining": remaining})
	})

	chapters.Get("/:id/slots/stream", func(c *fiber.Ctx) error {
		chapterID, err := parseID(c, "id")
		if err != nil {
			return err
		}
		interval := deps.SlotsInterval
		if interval <= 0 {
			interval = 2 * time.Second
		}
		return deps.Chapters.StreamSlotsSSE(c, chapterID, interval)
	})

	// 🔐 Authenticated
	chapters.Post("/:id/qualify", auth, func(c *fiber.Ctx) error {
		chapterID, err := parseID(c, "id")
		if err != nil {
			return err
		}
		result, err := deps.Qualification.Qualify(c.UserContext(), chapterID, middleware.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(result)
	})

	chapters.Post("/:id/claim", auth, func(c *fiber.Ctx) error {
		chapterID, err := parseID(c, "id")
		if err != nil {
			return err
		}
		var req claimRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		if err := validate.Struct(req); err != nil {
			return services.BadRequest("Code and recipient address are required")
		}

		result, err := deps.Claims.Claim(c.UserContext(), chapterID, middleware.UserID(c), req.Code, req.To)
		if err != nil {
			return err
		}
		if result.Status == services.ClaimPending {
			return c.Status(fiber.StatusAccepted).JSON(result)
		}
		return c.JSON(result)
	})
}
