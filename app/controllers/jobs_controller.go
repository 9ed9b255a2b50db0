package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HandleJobExpireChips runs the chip deadline sweep. Invoked by the external
// scheduler behind the cron secret middleware.
func HandleJobExpireChips(c *fiber.Ctx) error {
	result, err := lifecycleService().SweepChips(c.Context(), time.Now())
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(result)
}

// HandleJobExpirePools runs the pool deadline sweep, including refund
// compensation for pools that fell short of their goal.
func HandleJobExpirePools(c *fiber.Ctx) error {
	svc, err := fundingService()
	if err != nil {
		return jsonError(c, err)
	}
	result, err := svc.SweepPools(c.Context(), time.Now())
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(result)
}
