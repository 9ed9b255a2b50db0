package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/windwalker46/chipin/internal/pkg/usercontext"
)

// RequireAuth rejects requests without a logged-in session.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.GetUserContext(c).IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	return c.Next()
}

// RequireAdmin rejects requests without a logged-in admin session.
func RequireAdmin(c *fiber.Ctx) error {
	ctx := usercontext.GetUserContext(c)
	if !ctx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	if !ctx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Admin required"})
	}
	return c.Next()
}
