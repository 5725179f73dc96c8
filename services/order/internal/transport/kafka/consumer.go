package kafka

import (
	"context"

	"github.com/bsmi021/eahub-shopco/pkg/bus"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/replication"
	"github.com/bsmi021/eahub-shopco/services/order/internal/service"
)

// RegisterCommands subscribes the saga to everything that moves an order.
func RegisterCommands(r *bus.Router, svc service.SagaService) {
	bus.On(r, generalDomain.SourceBasket, generalDomain.EventUserCheckoutAccepted, svc.HandleCheckoutAccepted)

	bus.On(r, generalDomain.SourceOrders, generalDomain.EventOrderStarted, svc.HandleOrderStarted)
	bus.On(r, generalDomain.SourceOrders, generalDomain.EventBuyerPaymentVerified, svc.HandleBuyerPaymentVerified)
	bus.On(r, generalDomain.SourceOrders, generalDomain.EventShipOrder, func(ctx context.Context, msg generalDomain.ShipOrder) error {
		return svc.Ship(ctx, msg.OrderID)
	})

	bus.On(r, generalDomain.SourceInventoryItems, generalDomain.EventConfirmedOrderStock, svc.HandleStockConfirmed)
	bus.On(r, generalDomain.SourceInventoryItems, generalDomain.EventRejectedOrderStock, svc.HandleStockRejected)
	bus.On(r, generalDomain.SourceInventoryItems, generalDomain.EventOrderStockDebited, svc.HandleStockDebited)

	bus.On(r, generalDomain.SourcePayments, generalDomain.EventPaymentSucceeded, svc.HandlePaymentSucceeded)
	bus.On(r, generalDomain.SourcePayments, generalDomain.EventPaymentFailed, svc.HandlePaymentFailed)
}

// OrderProjection describes the order documents kept in the query store.
var OrderProjection = replication.Spec{
	Keys:     []string{"id"},
	Required: []string{"id", "customer_id", "order_status_id", "order_items"},
}

// RegisterQueries feeds the order read model from command_orders replication.
func RegisterQueries(r *bus.Router, projector *replication.Projector) {
	projector.Register(r, generalDomain.SourceOrders)
}
