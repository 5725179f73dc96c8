package tests

import (
	"context"
	"sync"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
)

func (s *IntegrationTestSuite) TestProcessPayment_ApprovedOnce() {
	svc := s.newService(true)

	s.Require().NoError(svc.ProcessPayment(s.Ctx, generalDomain.OrderStatusChanged{OrderID: 1}))
	s.Require().NoError(svc.ProcessPayment(s.Ctx, generalDomain.OrderStatusChanged{OrderID: 1}))

	s.Equal([]string{generalDomain.EventPaymentSucceeded}, s.outboxEvents())
	s.Equal("approved", s.paymentStatus(1))

	var topic string
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT topic FROM outbox`).Scan(&topic))
	s.Equal(generalDomain.SourcePayments, topic)
}

func (s *IntegrationTestSuite) TestProcessPayment_Declined() {
	svc := s.newService(false)

	s.Require().NoError(svc.ProcessPayment(s.Ctx, generalDomain.OrderStatusChanged{OrderID: 2}))

	s.Equal([]string{generalDomain.EventPaymentFailed}, s.outboxEvents())
	s.Equal("declined", s.paymentStatus(2))
}

func (s *IntegrationTestSuite) TestProcessPayment_ConcurrentDeliveries() {
	svc := s.newService(true)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(svc.ProcessPayment(context.Background(), generalDomain.OrderStatusChanged{OrderID: 3}))
		}()
	}
	wg.Wait()

	s.Len(s.outboxEvents(), 1)
}

func (s *IntegrationTestSuite) TestRefundPayment() {
	svc := s.newService(true)

	s.Require().NoError(svc.ProcessPayment(s.Ctx, generalDomain.OrderStatusChanged{OrderID: 4}))
	s.Require().NoError(svc.RefundPayment(s.Ctx, generalDomain.OrderCancelled{OrderID: 4, Description: "late"}))
	s.Equal("refunded", s.paymentStatus(4))

	s.Require().NoError(svc.RefundPayment(s.Ctx, generalDomain.OrderCancelled{OrderID: 404}))
}
