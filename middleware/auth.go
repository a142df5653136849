package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"luminar-api/logger"
	"luminar-api/services"
)

const (
	LocalUserID    = "user_id"
	LocalUserEmail = "user_email"
)

// Identity verifies the bearer access token and attaches the internal user to
// the request. Users are created on first sight.
func Identity(provider services.IdentityProvider, users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return services.ErrUnauthorized
		}

		ctx := c.UserContext()
		identity, err := provider.VerifyToken(ctx, token)
		if err != nil {
			logger.WarnCtx(ctx, "Rejected access token", zap.String("path", c.Path()), zap.Error(err))
			return services.ErrUnauthorized
		}

		user, err := users.Resolve(ctx, identity)
		if err != nil {
			return services.Internal("Failed to resolve user", err)
		}

		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalUserEmail, user.Email)
		return c.Next()
	}
}

// UserID returns the id set by Identity, or "" on public routes
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

func UserEmail(c *fiber.Ctx) string {
	email, _ := c.Locals(LocalUserEmail).(string)
	return email
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
