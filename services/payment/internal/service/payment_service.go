package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/bus"
	"github.com/bsmi021/eahub-shopco/pkg/config"
	"github.com/bsmi021/eahub-shopco/pkg/db"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/payment/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/payment/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const aggregatePayment = "payment"

type PaymentService interface {
	ProcessPayment(ctx context.Context, event generalDomain.OrderStatusChanged) error
	RefundPayment(ctx context.Context, event generalDomain.OrderCancelled) error
}

type paymentService struct {
	pool        db.TxStarter
	paymentRepo repository.PaymentRepository
	emitter     bus.Emitter
	cfg         config.Payment
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
	newTxID     func() string
}

func NewPaymentService(
	pool db.TxStarter,
	paymentRepo repository.PaymentRepository,
	emitter bus.Emitter,
	cfg config.Payment,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		pool:        pool,
		paymentRepo: paymentRepo,
		emitter:     emitter,
		cfg:         cfg,
		logger:      logger,
		tracer:      otel.Tracer("service/payment_service"),
		now:         time.Now,
		newTxID:     uuid.NewString,
	}
}

// ProcessPayment charges a stock-confirmed order once. The outcome is decided
// by configuration; redelivery finds the stored payment and does nothing.
func (s *paymentService) ProcessPayment(ctx context.Context, event generalDomain.OrderStatusChanged) error {
	ctx, span := s.tracer.Start(ctx, "PaymentService.ProcessPayment")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", event.OrderID))

	mylogger.Info(ctx, s.logger, "Processing payment", zap.Int64("order_id", event.OrderID))

	var payment *domain.Payment
	err := db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		existing, err := s.paymentRepo.GetByOrderIDForUpdate(ctx, tx, event.OrderID)
		if err == nil {
			mylogger.Warn(ctx, s.logger, "Payment already exists for this order",
				zap.Int64("order_id", event.OrderID),
				zap.String("status", string(existing.Status)),
			)
			return nil
		}
		if !errors.Is(err, repository.ErrPaymentNotFound) {
			return err
		}

		payment = domain.NewPayment(event.OrderID, s.cfg.Succeed, s.newTxID(), s.now())
		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return err
		}

		return s.emitOutcome(ctx, tx, payment)
	})
	if errors.Is(err, repository.ErrPaymentExists) {
		mylogger.Warn(ctx, s.logger, "Payment created concurrently", zap.Int64("order_id", event.OrderID))
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	if payment != nil {
		mylogger.Info(ctx, s.logger, "ProcessPayment finished",
			zap.Int64("order_id", event.OrderID),
			zap.String("status", string(payment.Status)),
			zap.String("transaction_id", payment.TransactionID),
		)
	}

	return nil
}

// RefundPayment returns the money of a cancelled order that was charged.
func (s *paymentService) RefundPayment(ctx context.Context, event generalDomain.OrderCancelled) error {
	ctx, span := s.tracer.Start(ctx, "PaymentService.RefundPayment")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", event.OrderID))

	var refunded bool
	err := db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		payment, err := s.paymentRepo.GetByOrderIDForUpdate(ctx, tx, event.OrderID)
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		refunded, err = payment.Refund(s.now())
		if err != nil || !refunded {
			return err
		}

		return s.paymentRepo.UpdateStatus(ctx, tx, payment)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if refunded {
		mylogger.Info(ctx, s.logger, "Payment refunded",
			zap.Int64("order_id", event.OrderID),
			zap.String("description", event.Description),
		)
	}

	return nil
}

func (s *paymentService) emitOutcome(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error {
	key := strconv.FormatInt(payment.OrderID, 10)

	var err error
	if payment.Status == domain.PaymentApproved {
		err = s.emitter.Emit(ctx, tx, generalDomain.EventPaymentSucceeded, aggregatePayment, key,
			generalDomain.PaymentSucceeded{OrderID: payment.OrderID, TransactionID: payment.TransactionID})
	} else {
		err = s.emitter.Emit(ctx, tx, generalDomain.EventPaymentFailed, aggregatePayment, key,
			generalDomain.PaymentFailed{OrderID: payment.OrderID, TransactionID: payment.TransactionID, Reason: payment.Reason})
	}
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Failed to emit event", zap.Error(err))
		return fmt.Errorf("emit payment outcome: %w", err)
	}

	return nil
}
