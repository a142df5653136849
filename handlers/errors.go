package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"luminar-api/logger"
	"luminar-api/middleware"
	"luminar-api/services"
)

var statusByKind = map[services.Kind]int{
	services.KindUnauthorized:        fiber.StatusUnauthorized,
	services.KindForbidden:           fiber.StatusForbidden,
	services.KindBadRequest:          fiber.StatusBadRequest,
	services.KindInvalidJSON:         fiber.StatusBadRequest,
	services.KindInvalidAnswer:       fiber.StatusBadRequest,
	services.KindBadAddress:          fiber.StatusBadRequest,
	services.KindBadCode:             fiber.StatusBadRequest,
	services.KindChapterEnded:        fiber.StatusBadRequest,
	services.KindChapterAlreadyEnded: fiber.StatusBadRequest,
	services.KindChapterNotFound:     fiber.StatusNotFound,
	services.KindClueNotFound:        fiber.StatusNotFound,
	services.KindNotWinner:           fiber.StatusNotFound,
	services.KindNotFound:            fiber.StatusNotFound,
	services.KindAlreadySolved:       fiber.StatusConflict,
	services.KindAlreadyClaimed:      fiber.StatusConflict,
	services.KindClaimPending:        fiber.StatusConflict,
	services.KindCooldown:            fiber.StatusTooManyRequests,
	services.KindUnavailable:         fiber.StatusServiceUnavailable,
}

var (
	errEndpointNotFound = &services.Error{Kind: services.KindNotFound, Message: "Endpoint not found"}
	errInvalidJSON      = &services.Error{Kind: services.KindInvalidJSON, Message: "Invalid JSON in request body"}
	errInvalidID        = services.BadRequest("Invalid id")
)

// ErrorHandler renders every error as {error, message}. Internal causes are
// logged and never sent.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
			err = errEndpointNotFound
		case fiber.StatusRequestEntityTooLarge:
			err = services.BadRequest("Request body too large")
		case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
			err = errInvalidJSON
		}
	}

	e := services.AsError(err)
	status, ok := statusByKind[e.Kind]
	if !ok {
		logger.ErrorCtx(c.UserContext(), e.Message, err,
			zap.String("path", c.Path()),
			zap.String("user_id", middleware.UserID(c)),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   services.KindInternal,
			"message": "An unexpected error occurred",
		})
	}

	body := fiber.Map{"error": e.Kind, "message": e.Message}
	if e.Kind == services.KindCooldown {
		body["retry_after"] = e.RetryAfter
		c.Set(fiber.HeaderRetryAfter, itoa(e.RetryAfter))
	}
	return c.Status(status).JSON(body)
}
