package router

import (
	"github.com/fluxpay/subsync/app/controllers"
	"github.com/fluxpay/subsync/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1", middleware.AdminTokenMiddleware())
	v1.Get("/webhook-events", controllers.HandleListWebhookEvents)
	v1.Get("/subscriptions/:email", controllers.HandleGetSubscription)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
