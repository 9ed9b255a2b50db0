package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/windwalker46/chipin/internal/pkg/env"
)

// CronSecretMiddleware guards the scheduled-job endpoints with a static
// shared secret header. The scheduler is an external collaborator; this is
// its only authentication.
func CronSecretMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := env.GetEnv("CRON_SHARED_SECRET", "")
		got := strings.TrimSpace(c.Get("X-Cron-Secret"))
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		return c.Next()
	}
}
