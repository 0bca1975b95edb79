package controllers

import (
	"errors"
	"log"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/creditdesk/creditdesk/app/models"
	"github.com/creditdesk/creditdesk/app/repository"
	"github.com/creditdesk/creditdesk/internal/pkg/billing"
	"github.com/creditdesk/creditdesk/internal/pkg/database"
	"github.com/creditdesk/creditdesk/internal/pkg/gateway"
	"github.com/creditdesk/creditdesk/internal/pkg/usercontext"
)

var (
	gatewayClient billing.PaymentGateway
	gatewayOnce   sync.Once
)

// SetPaymentGateway injects the gateway client constructed at startup.
// Tests use it to install a fake; production wiring happens in main.
func SetPaymentGateway(gw billing.PaymentGateway) {
	gatewayClient = gw
}

func getPaymentGateway() billing.PaymentGateway {
	gatewayOnce.Do(func() {
		if gatewayClient == nil {
			gatewayClient = gateway.NewMollieClientFromEnv()
		}
	})
	return gatewayClient
}

func billingService() *billing.Service {
	return billing.NewServiceFromDB(database.GetDB(), getPaymentGateway())
}

// respondBillingError maps the billing error taxonomy to HTTP statuses.
// Unexpected and gateway failures get a correlation id that is logged and
// returned so operators can match reports to server logs.
func respondBillingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, billing.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	case errors.Is(err, billing.ErrPreconditionFailed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "precondition_failed", "message": err.Error()})
	case errors.Is(err, billing.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	case errors.Is(err, billing.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_input", "message": err.Error()})
	case billing.IsGatewayError(err):
		correlationID := billing.NewCorrelationID()
		log.Printf("[%s] gateway failure on %s %s: %v", correlationID, c.Method(), c.Path(), err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_error", "correlation_id": correlationID})
	default:
		correlationID := billing.NewCorrelationID()
		log.Printf("[%s] unexpected failure on %s %s: %v", correlationID, c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "correlation_id": correlationID})
	}
}

// callerAccountRef resolves the billing account the request acts on: the
// caller's own user account, or an organization the caller owns when the
// route carries an orgID parameter.
func callerAccountRef(c *fiber.Ctx) (models.AccountRef, error) {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return models.AccountRef{}, fiber.NewError(fiber.StatusUnauthorized, "not authenticated")
	}

	orgParam := c.Params("orgID")
	if orgParam == "" {
		return models.AccountRef{Kind: models.AccountKindUser, ID: userCtx.UserID}, nil
	}

	orgID, err := strconv.ParseUint(orgParam, 10, 32)
	if err != nil {
		return models.AccountRef{}, fiber.NewError(fiber.StatusBadRequest, "invalid organization id")
	}

	org, err := repository.GetGlobalFactory().GetOrganizationRepository().GetByID(uint(orgID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AccountRef{}, fiber.NewError(fiber.StatusNotFound, "organization not found")
		}
		return models.AccountRef{}, err
	}

	if org.OwnerUserID != userCtx.UserID && !userCtx.IsAdmin {
		return models.AccountRef{}, fiber.NewError(fiber.StatusForbidden, "not an owner of this organization")
	}

	return models.AccountRef{Kind: models.AccountKindOrganization, ID: org.ID}, nil
}
