package http

import (
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/transport/http/handler"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *handler.ProductHandler) {
	products := app.Group("/products")

	products.Get("", h.List)
	products.Get("/:id", h.FindByID)
	products.Post("", h.Create)
	products.Patch("/:id", h.Update)
}
