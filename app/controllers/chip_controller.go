package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/windwalker46/chipin/app/models"
	"github.com/windwalker46/chipin/internal/pkg/lifecycle"
	"github.com/windwalker46/chipin/internal/pkg/usercontext"
)

type createChipRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	ThresholdCount int    `json:"threshold_count"`
	DeadlineAt     string `json:"deadline_at"`
	IsPrivate      bool   `json:"is_private"`
	DisplayName    string `json:"display_name"`
	Objectives     []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"objectives"`
}

type joinChipRequest struct {
	DisplayName string `json:"display_name"`
}

type toggleObjectiveRequest struct {
	ParticipantID uint `json:"participant_id"`
}

// HandleChipCreate creates a chip for the logged-in user.
func HandleChipCreate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createChipRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	deadline, err := time.Parse(time.RFC3339, req.DeadlineAt)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "deadline_at must be RFC 3339"})
	}

	in := lifecycle.CreateChipInput{
		CreatorID:          userCtx.UserID,
		CreatorDisplayName: firstNonEmpty(req.DisplayName, userCtx.Username),
		Title:              req.Title,
		Description:        req.Description,
		ThresholdCount:     req.ThresholdCount,
		DeadlineAt:         deadline,
		IsPrivate:          req.IsPrivate,
	}
	for _, o := range req.Objectives {
		in.Objectives = append(in.Objectives, lifecycle.ObjectiveInput{Title: o.Title, Description: o.Description})
	}

	chip, err := lifecycleService().CreateChip(c.Context(), in)
	if err != nil {
		return jsonError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(chip)
}

// HandleChipList lists the chips the logged-in user created.
func HandleChipList(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	chips, err := lifecycleService().ListCreatorChips(c.Context(), userCtx.UserID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"chips": chips})
}

// HandleChipGet shows a chip with its participants and objectives.
func HandleChipGet(c *fiber.Ctx) error {
	chip, participants, objectives, err := lifecycleService().GetChipByCode(c.Context(), c.Params("code"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{
		"chip":         chip,
		"participants": participants,
		"objectives":   objectives,
	})
}

// HandleChipJoin joins the chip, as a guest or as the logged-in user.
func HandleChipJoin(c *fiber.Ctx) error {
	svc := lifecycleService()
	chip, _, _, err := svc.GetChipByCode(c.Context(), c.Params("code"))
	if err != nil {
		return jsonError(c, err)
	}

	var req joinChipRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	var userID *uint
	userCtx := usercontext.GetUserContext(c)
	if userCtx.IsLoggedIn {
		id := userCtx.UserID
		userID = &id
	}

	participant, err := svc.JoinChip(c.Context(), chip.ID, userID, firstNonEmpty(req.DisplayName, userCtx.Username))
	if err != nil {
		return jsonError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(participant)
}

// HandleChipObjectiveToggle flips one objective's completion state.
func HandleChipObjectiveToggle(c *fiber.Ctx) error {
	svc := lifecycleService()
	chip, _, _, err := svc.GetChipByCode(c.Context(), c.Params("code"))
	if err != nil {
		return jsonError(c, err)
	}
	objectiveID, err := c.ParamsInt("objectiveID")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid objective id"})
	}

	var req toggleObjectiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	objective, err := svc.ToggleObjective(c.Context(), chip.ID, uint(objectiveID), req.ParticipantID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(objective)
}

// HandleChipComplete is the creator's manual completion.
func HandleChipComplete(c *fiber.Ctx) error {
	return handleChipOwnerTransition(c, lifecycleService().CompleteChip)
}

// HandleChipCancel is the creator's cancellation.
func HandleChipCancel(c *fiber.Ctx) error {
	return handleChipOwnerTransition(c, lifecycleService().CancelChip)
}

func handleChipOwnerTransition(c *fiber.Ctx, transition func(ctx context.Context, chipID, actorID uint) (*models.Chip, error)) error {
	chip, _, _, err := lifecycleService().GetChipByCode(c.Context(), c.Params("code"))
	if err != nil {
		return jsonError(c, err)
	}

	userCtx := usercontext.GetUserContext(c)
	updated, err := transition(c.Context(), chip.ID, userCtx.UserID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(updated)
}
