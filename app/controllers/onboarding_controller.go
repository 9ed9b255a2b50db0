package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/windwalker46/chipin/internal/pkg/env"
	"github.com/windwalker46/chipin/internal/pkg/usercontext"
)

// HandleConnectOnboarding creates the connected account if needed and returns
// a fresh hosted onboarding link.
func HandleConnectOnboarding(c *fiber.Ctx) error {
	svc, err := fundingService()
	if err != nil {
		return jsonError(c, err)
	}

	base := env.GetEnv("APP_URL", "http://localhost:3000")
	userCtx := usercontext.GetUserContext(c)
	link, err := svc.StartOnboarding(c.Context(), userCtx.UserID, base+"/connect/refresh", base+"/connect/return")
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"onboarding_url": link})
}

// HandleConnectStatus refreshes the connected account state and reports
// whether the user can organize pools.
func HandleConnectStatus(c *fiber.Ctx) error {
	svc, err := fundingService()
	if err != nil {
		return jsonError(c, err)
	}

	userCtx := usercontext.GetUserContext(c)
	user, err := svc.RefreshOnboardingStatus(c.Context(), userCtx.UserID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{
		"onboarding_complete": user.StripeOnboardingComplete,
		"charges_enabled":     user.ChargesEnabled,
		"payouts_enabled":     user.PayoutsEnabled,
		"can_organize_pools":  user.CanOrganizePools(),
	})
}
