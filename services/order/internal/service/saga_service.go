package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/bus"
	"github.com/bsmi021/eahub-shopco/pkg/config"
	"github.com/bsmi021/eahub-shopco/pkg/db"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/metrics"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/order/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/order/internal/repository"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	aggregateOrder = "order"
	sweepBatchSize = 50

	descriptionPaymentDeclined = "The payment was declined"
	descriptionCancelled       = "The order was cancelled on request"
)

// SagaService drives orders through their lifecycle. Every method runs in a
// single transaction that holds the order row lock.
type SagaService interface {
	HandleCheckoutAccepted(ctx context.Context, event generalDomain.UserCheckoutAccepted) error
	HandleOrderStarted(ctx context.Context, event generalDomain.OrderStarted) error
	HandleBuyerPaymentVerified(ctx context.Context, event generalDomain.BuyerPaymentVerified) error
	HandleStockConfirmed(ctx context.Context, event generalDomain.ConfirmedOrderStock) error
	HandleStockRejected(ctx context.Context, event generalDomain.RejectedOrderStock) error
	HandlePaymentSucceeded(ctx context.Context, event generalDomain.PaymentSucceeded) error
	HandlePaymentFailed(ctx context.Context, event generalDomain.PaymentFailed) error
	HandleStockDebited(ctx context.Context, event generalDomain.OrderStockDebited) error
	Ship(ctx context.Context, orderID int64) error
	Cancel(ctx context.Context, orderID int64, description string) error
	SagaLog(ctx context.Context, orderID int64) ([]domain.SagaCheckpoint, error)
	ExpireOverdue(ctx context.Context) (int, error)
}

type sagaService struct {
	pool      db.TxStarter
	logger    *zap.Logger
	orderRepo repository.OrderRepository
	buyerRepo repository.BuyerRepository
	sagaRepo  repository.SagaRepository
	emitter   bus.Emitter
	cfg       config.Saga
	now       func() time.Time
	tracer    trace.Tracer
}

func NewSagaService(
	pool db.TxStarter,
	logger *zap.Logger,
	orderRepo repository.OrderRepository,
	buyerRepo repository.BuyerRepository,
	sagaRepo repository.SagaRepository,
	emitter bus.Emitter,
	cfg config.Saga,
) SagaService {
	return &sagaService{
		pool:      pool,
		logger:    logger,
		orderRepo: orderRepo,
		buyerRepo: buyerRepo,
		sagaRepo:  sagaRepo,
		emitter:   emitter,
		cfg:       cfg,
		now:       time.Now,
		tracer:    otel.Tracer("order_saga_service"),
	}
}

func (s *sagaService) HandleCheckoutAccepted(ctx context.Context, event generalDomain.UserCheckoutAccepted) error {
	ctx, span := s.tracer.Start(ctx, "SagaService.HandleCheckoutAccepted")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", event.UserID))

	var orderID int64
	err := db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		now := s.now()
		order := domain.NewOrder(event, now)

		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return err
		}
		orderID = order.ID

		if err := s.sagaRepo.Start(ctx, tx, order.ID, domain.StepBuyerVerification, now.Add(s.cfg.BuyerVerificationTimeout)); err != nil {
			return err
		}

		if err := s.emit(ctx, tx, order.ID, generalDomain.EventOrderSubmitted, generalDomain.OrderSubmitted{
			OrderID:       order.ID,
			OrderStatusID: int(order.Status),
			BuyerName:     event.UserName,
		}); err != nil {
			return err
		}

		if err := s.emit(ctx, tx, order.ID, generalDomain.EventOrderStarted, generalDomain.OrderStarted{
			UserID:      event.UserID,
			UserName:    event.UserName,
			CardDetails: event.CardDetails,
			Order:       generalDomain.OrderRef{ID: order.ID, StatusID: int(order.Status)},
		}); err != nil {
			return err
		}

		metrics.SagaTransitions.WithLabelValues(order.Status.String()).Inc()

		return s.replicate(ctx, tx, order)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("create order for %s: %w", event.UserID, err)
	}

	mylogger.Info(ctx, s.logger, "Order submitted",
		zap.Int64("order_id", orderID),
		zap.String("user_id", event.UserID),
	)

	return nil
}

func (s *sagaService) HandleOrderStarted(ctx context.Context, event generalDomain.OrderStarted) error {
	ctx, span := s.tracer.Start(ctx, "SagaService.HandleOrderStarted")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", event.Order.ID))

	return s.withOrder(ctx, event.Order.ID, func(tx pgx.Tx, order *domain.Order) error {
		if order.Status != domain.OrderStatusSubmitted {
			s.logStale(ctx, order, generalDomain.EventOrderStarted)
			return nil
		}

		buyer, err := s.buyerRepo.FindByUserID(ctx, tx, event.UserID)
		if errors.Is(err, repository.ErrBuyerNotFound) {
			buyer = &domain.Buyer{UserID: event.UserID, Name: event.UserName}
			err = s.buyerRepo.Upsert(ctx, tx, buyer)
		}
		if err != nil {
			return err
		}

		candidate := domain.PaymentMethod{
			BuyerID:        buyer.ID,
			Alias:          fmt.Sprintf("Payment method on order #%d", order.ID),
			CardTypeID:     event.CardTypeID,
			CardNumber:     event.CardNumber,
			CardholderName: event.CardholderName,
			Expiration:     event.Expiration,
			SecurityNumber: event.SecurityNumber,
		}

		pm, found := buyer.FindPaymentMethod(candidate)
		if !found {
			if err := s.buyerRepo.AddPaymentMethod(ctx, tx, &candidate); err != nil {
				return err
			}
			pm = candidate
		}

		mylogger.Info(ctx, s.logger, "Buyer payment verified",
			zap.Int64("order_id", order.ID),
			zap.Int64("buyer_id", buyer.ID),
			zap.Int64("payment_method_id", pm.ID),
			zap.Bool("payment_method_existed", found),
		)

		return s.emit(ctx, tx, order.ID, generalDomain.EventBuyerPaymentVerified, generalDomain.BuyerPaymentVerified{
			BuyerID:   buyer.ID,
			PaymentID: pm.ID,
			OrderID:   order.ID,
		})
	})
}

func (s *sagaService) HandleBuyerPaymentVerified(ctx context.Context, event generalDomain.BuyerPaymentVerified) error {
	ctx, span := s.tracer.Start(ctx, "SagaService.HandleBuyerPaymentVerified")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", event.OrderID))

	return s.withOrder(ctx, event.OrderID, func(tx pgx.Tx, order *domain.Order) error {
		changed, err := s.advance(ctx, order, domain.OrderStatusAwaitingValidation, func() (bool, error) {
			return order.SetAwaitingValidation(event.BuyerID, event.PaymentID)
		})
		if err != nil || !changed {
			return err
		}

		if err := s.orderRepo.Update(ctx, tx, order); err != nil {
			return err
		}

		if err := s.sagaRepo.Finish(ctx, tx, order.ID, domain.StepBuyerVerification, domain.StepDone, ""); err != nil {
			return err
		}

		if err := s.sagaRepo.Start(ctx, tx, order.ID, domain.StepStockValidation, s.now().Add(s.cfg.StockValidationTimeout)); err != nil {
			return err
		}

		if err := s.emit(ctx, tx, order.ID, generalDomain.EventOrderAwaitingValidation, generalDomain.OrderAwaitingValidation{
			OrderID:         order.ID,
			OrderStockItems: order.StockItems(),
		}); err != nil {
			return err
		}

		return s.replicate(ctx, tx, order)
	})
}

func (s *sagaService) HandleStockConfirmed(ctx context.Context, event generalDomain.ConfirmedOrderStock) error {
	ctx, span := s.tracer.Start(ctx, "SagaService.HandleStockConfirmed")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", event.OrderID))

	return s.withOrder(ctx, event.OrderID, func(tx pgx.Tx, order *domain.Order) error {
		changed, err := s.advance(ctx, order, domain.OrderStatusStockConfirmed, order.SetStockConfirmed)
		if err != nil || !changed {
			return err
		}

		if err := s.orderRepo.Update(ctx, tx, order); err != nil {
			return err
		}

		if err := s.sagaRepo.Finish(ctx, tx, order.ID, domain.StepStockValidation, domain.StepDone, ""); err != nil {
			return err
		}

		if err := s.sagaRepo.Start(ctx, tx, order.ID, domain.StepPayment, s.now().Add(s.cfg.PaymentTimeout)); err != nil {
			return err
		}

		if err := s.emit(ctx, tx, order.ID, generalDomain.EventOrderStockConfirmed, generalDomain.OrderStatusChanged{
			OrderID: order.ID,
		}); err != nil {
			return err
		}

		return s.replicate(ctx, tx, order)
	})
}

func (s *sagaService) HandleStockRejected(ctx context.Context, event generalDomain.RejectedOrderStock) error {
	ctx, span := s.tracer.Start(ctx, "SagaService.HandleStockRejected")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", event.OrderID))

	var rejected []int64
	for _, item := range event.OrderStockItems {
		if !item.HasStock {
			rejected = append(rejected, item.ProductID)
		}
	}

	return s.withOrder(ctx, event.OrderID, func(tx pgx.Tx, order *domain.Order) error {
		return s.compensate(ctx, tx, order, domain.OrderStatusAwaitingValidation, generalDomain.EventRejectedOrderStock, func() (bool, error) {
			return order.SetCancelledWhenStockRejected(rejected)
		})
	})
}

func (s *sagaService) HandlePaymentSucceeded(ctx context.Context, event generalDomain.PaymentSucceeded) error {
	ctx, span := s.tracer.Start(ctx, "SagaService.HandlePaymentSucceeded")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", event.OrderID))

	return s.withOrder(ctx, event.OrderID, func(tx pgx.Tx, order *domain.Order) error {
		changed, err := s.advance(ctx, order, domain.OrderStatusPaid, order.SetPaid)
		if err != nil || !changed {
			return err
		}

		if err := s.orderRepo.Update(ctx, tx, order); err != nil {
			return err
		}

		if err := s.sagaRepo.Finish(ctx, tx, order.ID, domain.StepPayment, domain.StepDone, event.TransactionID); err != nil {
			return err
		}

		if err := s.sagaRepo.Start(ctx, tx, order.ID, domain.StepStockDebit, s.now().Add(s.cfg.StockDebitTimeout)); err != nil {
			return err
		}

		if err := s.emitPaid(ctx, tx, order); err != nil {
			return err
		}

		return s.replicate(ctx, tx, order)
	})
}

func (s *sagaService) HandlePaymentFailed(ctx context.Context, event generalDomain.PaymentFailed) error {
	ctx, span := s.tracer.Start(ctx, "SagaService.HandlePaymentFailed")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", event.OrderID))

	return s.withOrder(ctx, event.OrderID, func(tx pgx.Tx, order *domain.Order) error {
		return s.compensate(ctx, tx, order, domain.OrderStatusStockConfirmed, generalDomain.EventPaymentFailed, func() (bool, error) {
			return order.SetCancelled(descriptionPaymentDeclined)
		})
	})
}

func (s *sagaService) HandleStockDebited(ctx context.Context, event generalDomain.OrderStockDebited) error {
	ctx, span := s.tracer.Start(ctx, "SagaService.HandleStockDebited")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", event.OrderID))

	var shortfalls []string
	for _, item := range event.Items {
		if item.Removed < item.Requested {
			shortfalls = append(shortfalls, fmt.Sprintf("product %d short by %d", item.ProductID, item.Requested-item.Removed))
		}
	}

	return s.withOrder(ctx, event.OrderID, func(tx pgx.Tx, order *domain.Order) error {
		detail := strings.Join(shortfalls, "; ")
		if detail != "" {
			mylogger.Warn(ctx, s.logger, "Order debited with shortfall",
				zap.Int64("order_id", order.ID),
				zap.String("detail", detail),
			)
		}

		return s.sagaRepo.Finish(ctx, tx, order.ID, domain.StepStockDebit, domain.StepDone, detail)
	})
}

func (s *sagaService) Ship(ctx context.Context, orderID int64) error {
	ctx, span := s.tracer.Start(ctx, "SagaService.Ship")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	return s.withOrder(ctx, orderID, func(tx pgx.Tx, order *domain.Order) error {
		changed, err := order.SetShipped()
		if err != nil || !changed {
			return err
		}
		metrics.SagaTransitions.WithLabelValues(order.Status.String()).Inc()

		if err := s.orderRepo.Update(ctx, tx, order); err != nil {
			return err
		}

		if err := s.emit(ctx, tx, order.ID, generalDomain.EventOrderShipped, generalDomain.OrderStatusChanged{
			OrderID: order.ID,
		}); err != nil {
			return err
		}

		return s.replicate(ctx, tx, order)
	})
}

func (s *sagaService) Cancel(ctx context.Context, orderID int64, description string) error {
	ctx, span := s.tracer.Start(ctx, "SagaService.Cancel")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	if description == "" {
		description = descriptionCancelled
	}

	return s.withOrder(ctx, orderID, func(tx pgx.Tx, order *domain.Order) error {
		changed, err := order.SetCancelled(description)
		if err != nil || !changed {
			return err
		}

		return s.afterCancel(ctx, tx, order)
	})
}

func (s *sagaService) SagaLog(ctx context.Context, orderID int64) ([]domain.SagaCheckpoint, error) {
	ctx, span := s.tracer.Start(ctx, "SagaService.SagaLog")
	defer span.End()

	var steps []domain.SagaCheckpoint
	err := db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		order, err := s.orderRepo.Get(ctx, tx, orderID)
		if err != nil {
			return err
		}

		steps, err = s.sagaRepo.ListByOrder(ctx, tx, order.ID)
		return err
	})

	return steps, err
}

// ExpireOverdue handles the saga steps that passed their deadline. Waiting
// steps cancel the order; an unacknowledged stock debit is replayed.
func (s *sagaService) ExpireOverdue(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "SagaService.ExpireOverdue")
	defer span.End()

	handled := 0
	err := db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		now := s.now()

		overdue, err := s.sagaRepo.ListOverdue(ctx, tx, now, sweepBatchSize)
		if err != nil {
			return err
		}

		for _, step := range overdue {
			metrics.SagaTimeouts.WithLabelValues(string(step.Step)).Inc()

			order, err := s.orderRepo.GetForUpdate(ctx, tx, step.OrderID)
			if err != nil {
				return err
			}

			if step.Step == domain.StepStockDebit {
				err = s.replayDebit(ctx, tx, order, step, now)
			} else {
				err = s.expire(ctx, tx, order, step)
			}
			if err != nil {
				return err
			}

			handled++
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	return handled, nil
}

func (s *sagaService) expire(ctx context.Context, tx pgx.Tx, order *domain.Order, step domain.SagaCheckpoint) error {
	if !order.IsCancellable() {
		mylogger.Warn(ctx, s.logger, "Overdue saga step on an order that can no longer be cancelled",
			zap.Int64("order_id", order.ID),
			zap.String("step", string(step.Step)),
			zap.String("status", order.Status.String()),
		)
		return s.sagaRepo.Finish(ctx, tx, order.ID, step.Step, domain.StepFailed, "order is "+order.Status.String())
	}

	mylogger.Warn(ctx, s.logger, "Saga step timed out, cancelling order",
		zap.Int64("order_id", order.ID),
		zap.String("step", string(step.Step)),
	)

	if _, err := order.SetCancelled(domain.TimeoutDescription(step.Step)); err != nil {
		return err
	}

	return s.afterCancel(ctx, tx, order)
}

func (s *sagaService) replayDebit(ctx context.Context, tx pgx.Tx, order *domain.Order, step domain.SagaCheckpoint, now time.Time) error {
	if step.Attempts >= s.cfg.MaxDebitReplays {
		mylogger.Error(ctx, s.logger, "Stock debit never acknowledged, manual reconciliation required",
			zap.Int64("order_id", order.ID),
			zap.Int("replays", step.Attempts),
		)
		return s.sagaRepo.Finish(ctx, tx, order.ID, step.Step, domain.StepFailed,
			fmt.Sprintf("not acknowledged after %d replays", step.Attempts))
	}

	attempts, err := s.sagaRepo.Extend(ctx, tx, order.ID, step.Step, now.Add(s.cfg.StockDebitTimeout))
	if err != nil {
		return err
	}

	mylogger.Warn(ctx, s.logger, "Replaying stock debit",
		zap.Int64("order_id", order.ID),
		zap.Int("replay", attempts),
	)

	return s.emitPaid(ctx, tx, order)
}

// withOrder locks the order for the duration of fn.
func (s *sagaService) withOrder(ctx context.Context, orderID int64, fn func(tx pgx.Tx, order *domain.Order) error) error {
	return db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				mylogger.Warn(ctx, s.logger, "Order not found", zap.Int64("order_id", orderID))
			}
			return err
		}

		return fn(tx, order)
	})
}

// advance applies a forward transition. Redelivered events and events that
// arrive after the order moved past them report false without error.
func (s *sagaService) advance(ctx context.Context, order *domain.Order, target domain.OrderStatus, set func() (bool, error)) (bool, error) {
	if domain.IsStale(order.Status, target) {
		s.logStale(ctx, order, target.String())
		return false, nil
	}

	changed, err := set()
	if err != nil {
		return false, err
	}

	if changed {
		metrics.SagaTransitions.WithLabelValues(target.String()).Inc()
	}

	return changed, nil
}

// compensate cancels the order for a failure reply, but only while the order
// still waits on the step that produced it. Anything else is a late or
// redelivered reply and is acknowledged without effect.
func (s *sagaService) compensate(ctx context.Context, tx pgx.Tx, order *domain.Order, waiting domain.OrderStatus, event string, cancel func() (bool, error)) error {
	if order.Status != waiting {
		s.logStale(ctx, order, event)
		return nil
	}

	changed, err := cancel()
	if err != nil || !changed {
		return err
	}

	return s.afterCancel(ctx, tx, order)
}

func (s *sagaService) logStale(ctx context.Context, order *domain.Order, event string) {
	mylogger.Info(ctx, s.logger, "Ignored stale event",
		zap.Int64("order_id", order.ID),
		zap.String("status", order.Status.String()),
		zap.String("event", event),
	)
}

func (s *sagaService) afterCancel(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	metrics.SagaTransitions.WithLabelValues(order.Status.String()).Inc()

	if err := s.orderRepo.Update(ctx, tx, order); err != nil {
		return err
	}

	for _, step := range []domain.SagaStep{domain.StepBuyerVerification, domain.StepStockValidation, domain.StepPayment} {
		if err := s.sagaRepo.Finish(ctx, tx, order.ID, step, domain.StepCompensated, order.Description); err != nil {
			return err
		}
	}

	if err := s.emit(ctx, tx, order.ID, generalDomain.EventOrderCancelled, generalDomain.OrderCancelled{
		OrderID:     order.ID,
		Description: order.Description,
	}); err != nil {
		return err
	}

	mylogger.Info(ctx, s.logger, "Order cancelled",
		zap.Int64("order_id", order.ID),
		zap.String("description", order.Description),
	)

	return s.replicate(ctx, tx, order)
}

func (s *sagaService) emitPaid(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	return s.emit(ctx, tx, order.ID, generalDomain.EventOrderPaid, generalDomain.OrderPaid{
		OrderID:         order.ID,
		OrderStockItems: order.StockItems(),
	})
}

func (s *sagaService) emit(ctx context.Context, tx pgx.Tx, orderID int64, event string, payload any) error {
	if err := s.emitter.Emit(ctx, tx, event, aggregateOrder, strconv.FormatInt(orderID, 10), payload); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to save outbox event",
			zap.String("event", event),
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (s *sagaService) replicate(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	var (
		buyer *domain.Buyer
		pm    *domain.PaymentMethod
	)

	if order.BuyerID != nil {
		b, err := s.buyerRepo.GetByID(ctx, tx, *order.BuyerID)
		if err != nil {
			return err
		}
		buyer = b

		if order.PaymentMethodID != nil {
			for i := range b.PaymentMethods {
				if b.PaymentMethods[i].ID == *order.PaymentMethodID {
					pm = &b.PaymentMethods[i]
				}
			}
		}
	}

	return s.emit(ctx, tx, order.ID, generalDomain.EventReplicateDB, domain.NewOrderDocument(order, buyer, pm))
}
