package controllers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/creditdesk/creditdesk/app/repository"
)

// HandleListPackages returns the purchasable credit packages.
func HandleListPackages(c *fiber.Ctx) error {
	pkgs, err := repository.GetGlobalFactory().GetCatalogRepository().ListPackages()
	if err != nil {
		log.Printf("package listing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{"packages": pkgs})
}

// HandleListPlans returns the subscribable plans.
func HandleListPlans(c *fiber.Ctx) error {
	plans, err := repository.GetGlobalFactory().GetCatalogRepository().ListPlans()
	if err != nil {
		log.Printf("plan listing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{"plans": plans})
}
