package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"luminar-api/logger"
	"luminar-api/services"
)

const HeaderTurnstileToken = "X-Turnstile-Token"

// BotCheck requires a valid, unused challenge token. guard may be nil, in
// which case tokens are not checked for reuse.
func BotCheck(verifier services.ChallengeVerifier, guard services.ReplayGuard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get(HeaderTurnstileToken)
		if token == "" {
			return &services.Error{Kind: services.KindForbidden, Message: "Bot verification required"}
		}

		ctx := c.UserContext()
		ok, err := verifier.Verify(ctx, token, c.IP())
		if err != nil {
			logger.ErrorCtx(ctx, "Bot verification unavailable", err)
			return &services.Error{Kind: services.KindForbidden, Message: "Bot verification service unavailable"}
		}
		if !ok {
			return &services.Error{Kind: services.KindForbidden, Message: "Bot verification failed"}
		}

		if guard != nil {
			fresh, err := guard.MarkUsed(ctx, token)
			if err != nil {
				logger.ErrorCtx(ctx, "Replay guard unavailable", err)
				return &services.Error{Kind: services.KindForbidden, Message: "Bot verification service unavailable"}
			}
			if !fresh {
				logger.WarnCtx(ctx, "Challenge token reused", zap.String("path", c.Path()), zap.String("user_id", UserID(c)))
				return &services.Error{Kind: services.KindForbidden, Message: "Bot verification failed"}
			}
		}

		return c.Next()
	}
}
