package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/windwalker46/chipin/internal/pkg/session"
	"github.com/windwalker46/chipin/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the session into a UserContext for every
// request. Guests get the anonymous context; handlers never touch the session
// store directly for identity.
func UserContextMiddleware(c *fiber.Ctx) error {
	// Goth keeps its own fiber session store on the OAuth routes; skip the
	// app session there to prevent cross-store collisions.
	if strings.HasPrefix(c.Path(), "/auth/") {
		return c.Next()
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{})
		return c.Next()
	}

	userID := sess.Get(usercontext.KeyUserID)
	if userID == nil {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{})
		return c.Next()
	}

	username, _ := sess.Get(usercontext.KeyUsername).(string)
	isAdmin, _ := sess.Get(usercontext.KeyIsAdmin).(bool)

	uid, ok := userID.(uint)
	if !ok {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{})
		return c.Next()
	}

	c.Locals(usercontext.KeyUserContext, usercontext.UserContext{
		UserID:     uid,
		Username:   username,
		IsLoggedIn: true,
		IsAdmin:    isAdmin,
	})

	return c.Next()
}
