package http

import (
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/transport/http/handler"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, inventory *handler.InventoryHandler, sites *handler.SiteHandler) {
	items := app.Group("/inventory")

	items.Get("/sites/:siteId", inventory.BySite)
	items.Get("/:productId", inventory.ByProduct)
	items.Get("/:productId/availability", inventory.Availability)
	items.Get("/:productId/sites/:siteId/history", inventory.History)
	items.Post("/:productId/sites/:siteId/stock/add", inventory.AddStock)
	items.Post("/:productId/sites/:siteId/stock/remove", inventory.RemoveStock)

	s := app.Group("/sites")

	s.Get("", sites.List)
	s.Get("/:id", sites.FindByID)
	s.Post("", sites.Create)
	s.Put("/:id", sites.Update)
}
