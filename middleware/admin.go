package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"luminar-api/logger"
	"luminar-api/services"
)

// AdminOnly admits users whose email is on the allowlist. Must run after Identity.
func AdminOnly(emails []string) fiber.Handler {
	allowed := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			allowed[e] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		email := strings.ToLower(UserEmail(c))
		if _, ok := allowed[email]; !ok || email == "" {
			logger.WarnCtx(c.UserContext(), "Admin access denied",
				zap.String("user_id", UserID(c)),
				zap.String("path", c.Path()),
			)
			return services.ErrForbidden
		}
		return c.Next()
	}
}
