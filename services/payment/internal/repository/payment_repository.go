package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/payment/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

type PaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Payment, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
}

type paymentRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPaymentRepository(logger *zap.Logger) PaymentRepository {
	return &paymentRepo{
		logger: logger,
		tracer: otel.Tracer("repository/payment_repo"),
	}
}

func (r *paymentRepo) Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", payment.OrderID),
		attribute.String("status", string(payment.Status)),
	)

	query := `
		INSERT INTO payments (order_id, status, transaction_id, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`

	if err := tx.QueryRow(ctx, query,
		payment.OrderID,
		payment.Status,
		payment.TransactionID,
		payment.Reason,
		payment.CreatedAt,
	).Scan(&payment.ID); err != nil {
		span.RecordError(err)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("order %d: %w", payment.OrderID, ErrPaymentExists)
		}

		mylogger.Warn(ctx, r.logger, "Create payment failed", zap.Error(err))

		return fmt.Errorf("create payment for order %d: %w", payment.OrderID, err)
	}

	return nil
}

func (r *paymentRepo) GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.GetByOrderIDForUpdate")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	query := `
		SELECT id, order_id, status, transaction_id, reason, created_at, updated_at
		FROM payments
		WHERE order_id = $1
		FOR UPDATE
	`

	var p domain.Payment
	if err := tx.QueryRow(ctx, query, orderID).Scan(
		&p.ID,
		&p.OrderID,
		&p.Status,
		&p.TransactionID,
		&p.Reason,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", orderID, ErrPaymentNotFound)
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "GetByOrderID failed", zap.Error(err))

		return nil, fmt.Errorf("get payment for order %d: %w", orderID, err)
	}

	return &p, nil
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("payment_id", payment.ID),
		attribute.String("status", string(payment.Status)),
	)

	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $1, updated_at = $2
		WHERE id = $3
	`, payment.Status, payment.UpdatedAt, payment.ID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update payment %d: %w", payment.ID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %d: %w", payment.ID, ErrPaymentNotFound)
	}

	return nil
}
