package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/creditdesk/creditdesk/app/controllers"
	"github.com/creditdesk/creditdesk/internal/pkg/middleware"
)

// InstallRouter wires all HTTP routes.
func InstallRouter(app *fiber.App) {
	// Gateway webhook: unauthenticated callback channel; the reconciler
	// never trusts the payload beyond the payment id.
	app.Post("/webhooks/payment", controllers.HandlePaymentWebhook)

	api := app.Group("/api/v1", middleware.APIKeyAuthMiddleware())

	api.Get("/catalog/packages", controllers.HandleListPackages)
	api.Get("/catalog/plans", controllers.HandleListPlans)

	installBillingRoutes(api.Group("/billing"))
	installBillingRoutes(api.Group("/orgs/:orgID/billing"))
}

func installBillingRoutes(g fiber.Router) {
	g.Post("/topup", controllers.HandleTopUp)
	g.Post("/subscribe", controllers.HandleSubscribe)
	g.Delete("/subscription", controllers.HandleCancelSubscription)
	g.Post("/mandate/reauthorize", controllers.HandleReauthorizeMandate)
	g.Get("/purchases", controllers.HandleListPurchases)
	g.Get("/purchases/:paymentID", controllers.HandleGetPurchase)
}
