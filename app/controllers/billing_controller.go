package controllers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const billingRequestTimeout = 30 * time.Second

type topUpRequest struct {
	PackageID uint `json:"package_id" validate:"required,gt=0"`
}

type subscribeRequest struct {
	PlanID uint `json:"plan_id" validate:"required,gt=0"`
}

// HandleTopUp initiates a one-off credit package purchase and returns the
// gateway checkout URL.
func HandleTopUp(c *fiber.Ctx) error {
	ref, err := callerAccountRef(c)
	if err != nil {
		return err
	}

	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_input", "message": "malformed request body"})
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_input", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	checkoutURL, err := billingService().InitiateTopUp(ctx, ref, req.PackageID)
	if err != nil {
		return respondBillingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"checkout_url": checkoutURL})
}

// HandleSubscribe initiates a subscription first payment and returns the
// gateway checkout URL.
func HandleSubscribe(c *fiber.Ctx) error {
	ref, err := callerAccountRef(c)
	if err != nil {
		return err
	}

	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_input", "message": "malformed request body"})
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_input", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	checkoutURL, err := billingService().InitiateSubscription(ctx, ref, req.PlanID)
	if err != nil {
		return respondBillingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"checkout_url": checkoutURL})
}

// HandleCancelSubscription cancels the account's recurring subscription.
// Accounts without one get an idempotent success.
func HandleCancelSubscription(c *fiber.Ctx) error {
	ref, err := callerAccountRef(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	if err := billingService().CancelSubscription(ctx, ref); err != nil {
		return respondBillingError(c, err)
	}

	return c.JSON(fiber.Map{"ok": true})
}

// HandleReauthorizeMandate starts a zero-amount first payment to refresh
// the caller's saved payment method authorization.
func HandleReauthorizeMandate(c *fiber.Ctx) error {
	ref, err := callerAccountRef(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	checkoutURL, err := billingService().ReauthorizeMandate(ctx, ref)
	if err != nil {
		return respondBillingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"checkout_url": checkoutURL})
}

// HandleGetPurchase returns one ledger entry owned by the caller.
func HandleGetPurchase(c *fiber.Ctx) error {
	ref, err := callerAccountRef(c)
	if err != nil {
		return err
	}

	paymentID := c.Params("paymentID")
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_input", "message": "missing payment id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	details, err := billingService().GetPurchase(ctx, ref, paymentID)
	if err != nil {
		return respondBillingError(c, err)
	}

	return c.JSON(details)
}

// HandleListPurchases returns the caller's ledger entries, newest first.
func HandleListPurchases(c *fiber.Ctx) error {
	ref, err := callerAccountRef(c)
	if err != nil {
		return err
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	details, err := billingService().ListPurchases(ctx, ref, offset, limit)
	if err != nil {
		return respondBillingError(c, err)
	}

	return c.JSON(fiber.Map{"purchases": details})
}
