package controllers

import (
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/windwalker46/chipin/internal/pkg/database"
	"github.com/windwalker46/chipin/internal/pkg/funding"
	"github.com/windwalker46/chipin/internal/pkg/lifecycle"
	"github.com/windwalker46/chipin/internal/pkg/payments"
)

// Session keys written at login and read by the user context middleware.
const (
	AUTH_KEY      string = "authenticated"
	USER_ID       string = "user_id"
	USER_NAME     string = "username"
	USER_IS_ADMIN string = "isAdmin"
)

var (
	paymentsOnce   sync.Once
	paymentsShared payments.Client
	paymentsErr    error
)

func getPaymentsClient() (payments.Client, error) {
	paymentsOnce.Do(func() {
		paymentsShared, paymentsErr = payments.NewStripeClientFromEnv()
	})
	return paymentsShared, paymentsErr
}

func lifecycleService() *lifecycle.Service {
	return lifecycle.NewServiceFromDB(database.GetDB())
}

func fundingService() (*funding.Service, error) {
	client, err := getPaymentsClient()
	if err != nil {
		return nil, err
	}
	return funding.NewServiceFromDB(database.GetDB(), client), nil
}

// jsonError renders one error as a JSON problem with the right status code.
func jsonError(c *fiber.Ctx, err error) error {
	return c.Status(statusForError(err)).JSON(fiber.Map{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, lifecycle.ErrNotCreator),
		errors.Is(err, funding.ErrNotOrganizer):
		return fiber.StatusForbidden
	case errors.Is(err, lifecycle.ErrChipClosed),
		errors.Is(err, funding.ErrPoolClosed),
		errors.Is(err, funding.ErrPoolHasContributions):
		return fiber.StatusConflict
	case errors.Is(err, lifecycle.ErrTitleRequired),
		errors.Is(err, lifecycle.ErrInvalidThreshold),
		errors.Is(err, lifecycle.ErrInvalidDeadline),
		errors.Is(err, lifecycle.ErrDisplayNameNeeded),
		errors.Is(err, funding.ErrTitleRequired),
		errors.Is(err, funding.ErrInvalidGoal),
		errors.Is(err, funding.ErrInvalidDeadline),
		errors.Is(err, funding.ErrInvalidAmount),
		errors.Is(err, funding.ErrNameRequired),
		errors.Is(err, funding.ErrOrganizerNotOnboarded),
		errors.Is(err, funding.ErrNoConnectedAccount):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
