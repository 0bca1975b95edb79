package controllers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/creditdesk/creditdesk/internal/pkg/billing"
)

const webhookTimeout = 25 * time.Second

// HandlePaymentWebhook receives the gateway's payment notification. The
// body only carries a payment id; the reconciler fetches the
// authoritative state from the gateway itself. Unpaid, unknown and
// already verified payments return 200 so the gateway stops redelivering;
// real failures return 500 so it retries.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	paymentID := strings.TrimSpace(c.FormValue("id"))
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_input", "message": "missing payment id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	if err := billingService().ReconcilePayment(ctx, paymentID); err != nil {
		correlationID := billing.NewCorrelationID()
		log.Printf("[%s] webhook reconciliation for payment %s failed: %v", correlationID, paymentID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconciliation_failed", "correlation_id": correlationID})
	}

	return c.JSON(fiber.Map{"ok": true})
}
