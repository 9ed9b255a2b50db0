package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/windwalker46/chipin/internal/pkg/funding"
	"github.com/windwalker46/chipin/internal/pkg/usercontext"
)

type createPoolRequest struct {
	Title           string `json:"title"`
	RestaurantName  string `json:"restaurant_name"`
	GoalAmountCents *int64 `json:"goal_amount_cents"`
	DeadlineAt      string `json:"deadline_at"`
	TipPercent      int    `json:"tip_percent"`
}

type contributeRequest struct {
	ContributorName  string `json:"contributor_name"`
	ContributorEmail string `json:"contributor_email"`
	AmountCents      int64  `json:"amount_cents"`
}

// HandlePoolCreate creates a pool for the logged-in, onboarded organizer.
func HandlePoolCreate(c *fiber.Ctx) error {
	svc, err := fundingService()
	if err != nil {
		return jsonError(c, err)
	}

	var req createPoolRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	deadline, err := time.Parse(time.RFC3339, req.DeadlineAt)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "deadline_at must be RFC 3339"})
	}

	userCtx := usercontext.GetUserContext(c)
	pool, err := svc.CreatePool(c.Context(), funding.CreatePoolInput{
		OrganizerID:     userCtx.UserID,
		Title:           req.Title,
		RestaurantName:  req.RestaurantName,
		GoalAmountCents: req.GoalAmountCents,
		DeadlineAt:      deadline,
		TipPercent:      req.TipPercent,
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(pool)
}

// HandlePoolList lists the pools the logged-in user organizes.
func HandlePoolList(c *fiber.Ctx) error {
	svc, err := fundingService()
	if err != nil {
		return jsonError(c, err)
	}
	userCtx := usercontext.GetUserContext(c)
	pools, err := svc.ListOrganizerPools(c.Context(), userCtx.UserID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"pools": pools})
}

// HandlePoolGet shows a pool with its contributions.
func HandlePoolGet(c *fiber.Ctx) error {
	svc, err := fundingService()
	if err != nil {
		return jsonError(c, err)
	}
	pool, contributions, err := svc.GetPoolByCode(c.Context(), c.Params("code"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{
		"pool":          pool,
		"contributions": contributions,
	})
}

// HandlePoolContribute commits a pending contribution and returns the hosted
// checkout URL the contributor must be sent to.
func HandlePoolContribute(c *fiber.Ctx) error {
	svc, err := fundingService()
	if err != nil {
		return jsonError(c, err)
	}
	pool, _, err := svc.GetPoolByCode(c.Context(), c.Params("code"))
	if err != nil {
		return jsonError(c, err)
	}

	var req contributeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	contribution, checkoutURL, err := svc.Contribute(c.Context(), funding.ContributeInput{
		PoolID:           pool.ID,
		ContributorName:  req.ContributorName,
		ContributorEmail: req.ContributorEmail,
		AmountCents:      req.AmountCents,
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"contribution": contribution,
		"checkout_url": checkoutURL,
	})
}

// HandlePoolCancel is the organizer's cancellation of a pool that has not
// collected anything yet.
func HandlePoolCancel(c *fiber.Ctx) error {
	svc, err := fundingService()
	if err != nil {
		return jsonError(c, err)
	}
	pool, _, err := svc.GetPoolByCode(c.Context(), c.Params("code"))
	if err != nil {
		return jsonError(c, err)
	}

	userCtx := usercontext.GetUserContext(c)
	updated, err := svc.CancelPool(c.Context(), pool.ID, userCtx.UserID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(updated)
}
