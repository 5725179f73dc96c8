package http

import (
	"github.com/bsmi021/eahub-shopco/services/basket/internal/transport/http/handler"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *handler.BasketHandler) {
	baskets := app.Group("/baskets")

	baskets.Get("/:buyerId", h.Get)
	baskets.Put("/:buyerId", h.Update)
	baskets.Delete("/:buyerId", h.Delete)
	baskets.Post("/:buyerId/checkout", h.Checkout)
}
