package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/windwalker46/chipin/app/controllers"
	"github.com/windwalker46/chipin/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// The webhook route sits outside the limiter: the processor retries on
	// 429 and a retry storm would only make it worse.
	app.Post("/api/stripe/webhook", controllers.HandleStripeWebhook)

	api := app.Group("/api", limiter.New())

	api.Post("/register", controllers.HandleAuthRegister)
	api.Post("/login", controllers.HandleAuthLogin)
	api.Post("/logout", controllers.HandleAuthLogout)

	// Chips: reading and joining are public by share code.
	api.Post("/chips", middleware.RequireAuth, controllers.HandleChipCreate)
	api.Get("/chips", middleware.RequireAuth, controllers.HandleChipList)
	api.Get("/chips/:code", controllers.HandleChipGet)
	api.Post("/chips/:code/join", controllers.HandleChipJoin)
	api.Post("/chips/:code/objectives/:objectiveID/toggle", controllers.HandleChipObjectiveToggle)
	api.Post("/chips/:code/complete", middleware.RequireAuth, controllers.HandleChipComplete)
	api.Post("/chips/:code/cancel", middleware.RequireAuth, controllers.HandleChipCancel)

	// Pools: contributing is public, organizing requires a connected account.
	api.Post("/pools", middleware.RequireAuth, controllers.HandlePoolCreate)
	api.Get("/pools", middleware.RequireAuth, controllers.HandlePoolList)
	api.Get("/pools/:code", controllers.HandlePoolGet)
	api.Post("/pools/:code/contributions", controllers.HandlePoolContribute)
	api.Post("/pools/:code/cancel", middleware.RequireAuth, controllers.HandlePoolCancel)

	api.Post("/connect/onboarding", middleware.RequireAuth, controllers.HandleConnectOnboarding)
	api.Get("/connect/status", middleware.RequireAuth, controllers.HandleConnectStatus)

	// Scheduled sweeps, authenticated by shared secret instead of a session.
	jobs := api.Group("/jobs", middleware.CronSecretMiddleware())
	jobs.Post("/expire-chips", controllers.HandleJobExpireChips)
	jobs.Post("/expire-pools", controllers.HandleJobExpirePools)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
