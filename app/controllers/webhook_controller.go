package controllers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/windwalker46/chipin/internal/pkg/database"
	"github.com/windwalker46/chipin/internal/pkg/env"
	"github.com/windwalker46/chipin/internal/pkg/funding"
	"github.com/windwalker46/chipin/internal/pkg/payments"
)

// HandleStripeWebhook verifies and reconciles one processor delivery.
// Bad signatures are rejected outright; processing failures return 500 so
// the processor redelivers the event.
func HandleStripeWebhook(c *fiber.Ctx) error {
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")
	event, err := payments.VerifyWebhookSignature(c.Body(), c.Get("Stripe-Signature"), secret)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid signature"})
	}

	client, err := getPaymentsClient()
	if err != nil {
		return jsonError(c, err)
	}

	rec := funding.NewReconcilerFromDB(database.GetDB(), client)
	if err := rec.ProcessEvent(c.Context(), event); err != nil {
		log.Printf("webhook: event %s: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing failed"})
	}
	return c.JSON(fiber.Map{"received": true})
}
