package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/creditdesk/creditdesk/app/controllers"
	"github.com/creditdesk/creditdesk/app/repository"
	"github.com/creditdesk/creditdesk/internal/pkg/cache"
	"github.com/creditdesk/creditdesk/internal/pkg/database"
	"github.com/creditdesk/creditdesk/internal/pkg/env"
	"github.com/creditdesk/creditdesk/internal/pkg/gateway"
	"github.com/creditdesk/creditdesk/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4100")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// One gateway client per process, injected into the billing layer.
	controllers.SetPaymentGateway(gateway.NewMollieClientFromEnv())

	app := fiber.New(fiber.Config{
		AppName: "creditdesk",
	})

	app.Use(recover.New(), logger.New())

	router.InstallRouter(app)

	return app
}
