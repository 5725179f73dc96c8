package kafka

import (
	"github.com/bsmi021/eahub-shopco/pkg/bus"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/services/payment/internal/service"
)

// RegisterCommands charges orders once their stock is confirmed and refunds
// them when they are cancelled.
func RegisterCommands(r *bus.Router, svc service.PaymentService) {
	bus.On(r, generalDomain.SourceOrders, generalDomain.EventOrderStockConfirmed, svc.ProcessPayment)
	bus.On(r, generalDomain.SourceOrders, generalDomain.EventOrderCancelled, svc.RefundPayment)
}
