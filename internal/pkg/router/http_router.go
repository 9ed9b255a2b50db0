package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/windwalker46/chipin/app/controllers"
	"github.com/windwalker46/chipin/internal/pkg/middleware"
	"github.com/windwalker46/chipin/internal/pkg/oauth"
	"github.com/windwalker46/chipin/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	app.Use(middleware.UserContextMiddleware)

	app.Get("/", controllers.HandleStart)
	app.Get("/up", controllers.HandleHealth)

	// OAuth flow; goth keeps its own session store on these routes.
	app.Get("/auth/:provider", controllers.HandleOAuthBegin)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)
	app.Get("/auth/logout", controllers.HandleOAuthLogout)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
