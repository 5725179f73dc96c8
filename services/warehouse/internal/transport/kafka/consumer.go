package kafka

import (
	"github.com/bsmi021/eahub-shopco/pkg/bus"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/replication"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/service"
)

// RegisterCommands wires the inventory ledger to the catalog and the order saga.
func RegisterCommands(r *bus.Router, svc service.InventoryService) {
	bus.On(r, generalDomain.SourceProducts, generalDomain.EventProductAdded, svc.AddInventoryForProduct)

	bus.On(r, generalDomain.SourceOrders, generalDomain.EventOrderAwaitingValidation, svc.VerifyOrder)
	bus.On(r, generalDomain.SourceOrders, generalDomain.EventOrderPaid, svc.DebitOrder)
}

// InventoryProjection keeps one document per inventory item. Older versions
// arriving late never overwrite a newer one.
var InventoryProjection = replication.Spec{
	Keys:     []string{"id"},
	Required: []string{"id", "version", "product_id", "site_id", "available_stock"},
	Version:  "version",
}

var SiteProjection = replication.Spec{
	Keys:     []string{"id"},
	Required: []string{"id", "name", "zip_code", "type_id"},
}

func RegisterInventoryQueries(r *bus.Router, projector *replication.Projector) {
	projector.Register(r, generalDomain.SourceInventoryItems)
}

func RegisterSiteQueries(r *bus.Router, projector *replication.Projector) {
	projector.Register(r, generalDomain.SourceSites)
}
