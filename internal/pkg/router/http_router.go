package router

import (
	"github.com/fluxpay/subsync/app/controllers"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", controllers.HandleHealth)

	// The webhook endpoint authenticates via signature verification, not
	// sessions; it must see the raw body, so no body-parsing middleware here.
	app.Post("/webhook/stripe", controllers.HandleStripeWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
