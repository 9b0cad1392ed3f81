package http

import (
	"github.com/gofiber/fiber/v3"
)

func InitializeRoutes(app *fiber.App, h *Handlers) {
	app.Post("/v1/orders", h.PlaceOrder)
	app.Post("/v1/orders/:id/cancel", h.CancelOrder)
	app.Get("/v1/orders/:id", h.GetOrder)
	app.Get("/v1/orderbook/:ticker", h.GetDepth)
	app.Get("/v1/orderbook/:ticker/orders", h.GetRestingOrders)
}
