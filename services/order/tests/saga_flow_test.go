package tests

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	outboxUtils "github.com/bsmi021/eahub-shopco/pkg/outbox/utils"
	"github.com/bsmi021/eahub-shopco/services/order/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/order/internal/service"
	"go.uber.org/zap"
)

// submit drives a checkout through buyer verification and returns the order id.
func (s *IntegrationTestSuite) submit(userID string) int64 {
	event := s.checkout(userID)
	s.Require().NoError(s.SagaService.HandleCheckoutAccepted(s.Ctx, event))

	var started generalDomain.OrderStarted
	s.lastPayload(generalDomain.EventOrderStarted, &started)
	s.Require().NoError(s.SagaService.HandleOrderStarted(s.Ctx, started))

	var verified generalDomain.BuyerPaymentVerified
	s.lastPayload(generalDomain.EventBuyerPaymentVerified, &verified)
	s.Require().NoError(s.SagaService.HandleBuyerPaymentVerified(s.Ctx, verified))

	return started.Order.ID
}

func (s *IntegrationTestSuite) TestSaga_HappyPath() {
	orderID := s.submit("user-1")
	s.Equal(int(domain.OrderStatusAwaitingValidation), s.orderStatus(orderID))

	var awaiting generalDomain.OrderAwaitingValidation
	s.lastPayload(generalDomain.EventOrderAwaitingValidation, &awaiting)
	s.Equal([]generalDomain.OrderStockItem{{ProductID: 10, Units: 2}, {ProductID: 11, Units: 1}}, awaiting.OrderStockItems)

	s.Require().NoError(s.SagaService.HandleStockConfirmed(s.Ctx, generalDomain.ConfirmedOrderStock{OrderID: orderID}))
	s.Require().NoError(s.SagaService.HandlePaymentSucceeded(s.Ctx, generalDomain.PaymentSucceeded{OrderID: orderID, TransactionID: "tx-1"}))
	s.Require().NoError(s.SagaService.HandleStockDebited(s.Ctx, generalDomain.OrderStockDebited{OrderID: orderID}))
	s.Require().NoError(s.SagaService.Ship(s.Ctx, orderID))

	s.Equal(int(domain.OrderStatusShipped), s.orderStatus(orderID))
	s.ErrorIs(s.SagaService.Ship(s.Ctx, orderID), generalDomain.ErrInvalidTransition)

	steps, err := s.SagaService.SagaLog(s.Ctx, orderID)
	s.Require().NoError(err)
	s.Len(steps, 4)
	for _, step := range steps {
		s.Equal(domain.StepDone, step.Status, string(step.Step))
	}

	for _, row := range s.outbox() {
		s.Equal(generalDomain.SourceOrders, row.env.Source)
		s.NotEmpty(row.env.EventID)
	}
}

func (s *IntegrationTestSuite) TestSaga_ReadModelFollowsOrder() {
	orderID := s.submit("user-2")
	s.Require().NoError(s.SagaService.HandleStockConfirmed(s.Ctx, generalDomain.ConfirmedOrderStock{OrderID: orderID}))

	s.project()

	doc, err := s.QueryService.Get(s.Ctx, orderID)
	s.Require().NoError(err)

	status, _ := doc.String("order_status")
	s.Equal("stock_confirmed", status)

	var total string
	s.Require().NoError(json.Unmarshal(doc["total"], &total))
	s.Equal("21", total)

	var pm map[string]any
	s.Require().NoError(json.Unmarshal(doc["payment_method"], &pm))
	s.Equal("1111", pm["card_number"])

	buyerID, ok := doc.String("buyer_id")
	s.Require().True(ok)

	page, err := s.QueryService.List(s.Ctx, service.Filter{BuyerID: buyerID}, 1, 10)
	s.Require().NoError(err)
	s.Equal(int64(1), page.Total)
}

func (s *IntegrationTestSuite) TestSaga_BuyerAndPaymentMethodAreReused() {
	s.submit("user-3")
	s.submit("user-3")

	var buyers, methods int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM buyers`).Scan(&buyers))
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM payment_methods`).Scan(&methods))

	s.Equal(1, buyers)
	s.Equal(1, methods)
}

func (s *IntegrationTestSuite) TestSaga_StockRejected() {
	orderID := s.submit("user-4")

	s.Require().NoError(s.SagaService.HandleStockRejected(s.Ctx, generalDomain.RejectedOrderStock{
		OrderID: orderID,
		OrderStockItems: []generalDomain.StockCheckItem{
			{ProductID: 10, HasStock: false},
			{ProductID: 11, HasStock: true},
		},
	}))

	var cancelled generalDomain.OrderCancelled
	s.lastPayload(generalDomain.EventOrderCancelled, &cancelled)
	s.Equal("The product items do not have stock: (Mug)", cancelled.Description)
	s.Equal(int(domain.OrderStatusCancelled), s.orderStatus(orderID))

	// a late confirmation is stale and leaves the order cancelled
	s.Require().NoError(s.SagaService.HandleStockConfirmed(s.Ctx, generalDomain.ConfirmedOrderStock{OrderID: orderID}))
	s.Equal(int(domain.OrderStatusCancelled), s.orderStatus(orderID))
}

func (s *IntegrationTestSuite) TestSaga_CancelPaidOrderIsRejected() {
	orderID := s.submit("user-5")
	s.Require().NoError(s.SagaService.HandleStockConfirmed(s.Ctx, generalDomain.ConfirmedOrderStock{OrderID: orderID}))
	s.Require().NoError(s.SagaService.HandlePaymentSucceeded(s.Ctx, generalDomain.PaymentSucceeded{OrderID: orderID}))

	err := s.SagaService.Cancel(s.Ctx, orderID, "")
	s.ErrorIs(err, generalDomain.ErrInvalidTransition)
	s.Equal(int(domain.OrderStatusPaid), s.orderStatus(orderID))
}

func (s *IntegrationTestSuite) TestSaga_MissingOrderIsNotFound() {
	err := s.SagaService.HandlePaymentSucceeded(s.Ctx, generalDomain.PaymentSucceeded{OrderID: 4242})
	s.ErrorIs(err, generalDomain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestWatchdog_CancelsOverdueOrder() {
	s.sagaCfg.StockValidationTimeout = time.Millisecond
	s.buildServices()

	orderID := s.submit("user-6")
	time.Sleep(20 * time.Millisecond)

	n, err := s.SagaService.ExpireOverdue(s.Ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	var cancelled generalDomain.OrderCancelled
	s.lastPayload(generalDomain.EventOrderCancelled, &cancelled)
	s.Equal(domain.TimeoutDescription(domain.StepStockValidation), cancelled.Description)
	s.Equal(int(domain.OrderStatusCancelled), s.orderStatus(orderID))
}

func (s *IntegrationTestSuite) TestDeduplication_RunsOnce() {
	calls := 0
	action := func(context.Context) error {
		calls++
		return nil
	}

	for i := 0; i < 2; i++ {
		err := outboxUtils.ProcessWithDeduplication(s.Ctx, s.DbPool, zap.NewNop(), generalDomain.SubscriberOrders, "evt-1", action)
		s.Require().NoError(err)
	}
	s.Equal(1, calls)

	failing := func(context.Context) error { return errors.New("boom") }
	s.Error(outboxUtils.ProcessWithDeduplication(s.Ctx, s.DbPool, zap.NewNop(), generalDomain.SubscriberOrders, "evt-2", failing))
	s.Require().NoError(outboxUtils.ProcessWithDeduplication(s.Ctx, s.DbPool, zap.NewNop(), generalDomain.SubscriberOrders, "evt-2", action))
	s.Equal(2, calls)
}

func (s *IntegrationTestSuite) TestDeduplication_ActionWritesCommitWithRecord() {
	countOrders := func() int {
		var n int
		s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT count(*) FROM orders`).Scan(&n))
		return n
	}
	before := countOrders()

	failing := func(ctx context.Context) error {
		if err := s.SagaService.HandleCheckoutAccepted(ctx, s.checkout("user-dedup")); err != nil {
			return err
		}
		return errors.New("boom")
	}
	s.Error(outboxUtils.ProcessWithDeduplication(s.Ctx, s.DbPool, zap.NewNop(), generalDomain.SubscriberOrders, "evt-3", failing))
	s.Equal(before, countOrders())

	succeeding := func(ctx context.Context) error {
		return s.SagaService.HandleCheckoutAccepted(ctx, s.checkout("user-dedup"))
	}
	s.Require().NoError(outboxUtils.ProcessWithDeduplication(s.Ctx, s.DbPool, zap.NewNop(), generalDomain.SubscriberOrders, "evt-3", succeeding))
	s.Equal(before+1, countOrders())
}
