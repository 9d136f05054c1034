package ratelimit

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// Middleware rejects requests from a client IP once limiter denies it.
// Limiter failures are logged and the request proceeds.
func Middleware(limiter Limiter, scope string, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		decision, err := limiter.Allow(c.UserContext(), scope+":"+c.IP())
		if err != nil {
			logger.Warn("rate limiter unavailable; allowing request",
				zap.String("scope", scope),
				zap.Error(err),
			)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining()))
		if decision.Allowed {
			return c.Next()
		}

		retryAfter := int(time.Until(decision.ResetAt).Seconds() + 0.5)
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
		return apperrors.NewRateLimited("too many requests", map[string]any{
			"retryAfterSeconds": retryAfter,
		})
	}
}
