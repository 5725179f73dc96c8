package http

import (
	"github.com/bsmi021/eahub-shopco/services/order/internal/transport/http/handler"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *handler.OrderHandler) {
	orders := app.Group("/orders")

	orders.Get("", h.List)
	orders.Get("/:id", h.FindByID)
	orders.Get("/:id/saga", h.SagaLog)
	orders.Post("/:id/ship", h.Ship)
	orders.Post("/:id/cancel", h.Cancel)
}
