package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext carries the resolved identity of the current request, or the
// anonymous zero value for guests.
type UserContext struct {
	UserID     uint
	Username   string
	IsLoggedIn bool
	IsAdmin    bool
}

// GetUserContext returns the user context set by the middleware, or an
// anonymous context when none was set.
func GetUserContext(c *fiber.Ctx) UserContext {
	if v := c.Locals(KeyUserContext); v != nil {
		if ctx, ok := v.(UserContext); ok {
			return ctx
		}
	}
	return UserContext{}
}
