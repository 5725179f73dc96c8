package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/order/internal/domain"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type BuyerRepository interface {
	FindByUserID(ctx context.Context, tx pgx.Tx, userID string) (*domain.Buyer, error)
	GetByID(ctx context.Context, tx pgx.Tx, buyerID int64) (*domain.Buyer, error)
	// Upsert creates the buyer unless one exists for the user id, and fills in
	// the stored id either way.
	Upsert(ctx context.Context, tx pgx.Tx, buyer *domain.Buyer) error
	// AddPaymentMethod stores pm unless an equal method exists; pm.ID is set
	// to the stored record's id either way.
	AddPaymentMethod(ctx context.Context, tx pgx.Tx, pm *domain.PaymentMethod) error
}

type buyerRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewBuyerRepository(logger *zap.Logger) BuyerRepository {
	return &buyerRepo{
		logger: logger,
		tracer: otel.Tracer("buyer_repository"),
	}
}

func (r *buyerRepo) FindByUserID(ctx context.Context, tx pgx.Tx, userID string) (*domain.Buyer, error) {
	ctx, span := r.tracer.Start(ctx, "BuyerRepository.FindByUserID")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", userID))

	return r.load(ctx, tx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM buyers
		WHERE user_id = $1
	`, userID)
}

func (r *buyerRepo) GetByID(ctx context.Context, tx pgx.Tx, buyerID int64) (*domain.Buyer, error) {
	ctx, span := r.tracer.Start(ctx, "BuyerRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("buyer_id", buyerID))

	return r.load(ctx, tx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM buyers
		WHERE id = $1
	`, buyerID)
}

func (r *buyerRepo) load(ctx context.Context, tx pgx.Tx, query string, arg any) (*domain.Buyer, error) {
	var b domain.Buyer
	err := tx.QueryRow(ctx, query, arg).Scan(&b.ID, &b.UserID, &b.Name, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("buyer %v: %w", arg, ErrBuyerNotFound)
	}
	if err != nil {
		mylogger.Error(ctx, r.logger, "Failed to load buyer", zap.Any("key", arg), zap.Error(err))
		return nil, fmt.Errorf("load buyer %v: %w", arg, err)
	}

	methods, err := r.paymentMethods(ctx, tx, b.ID)
	if err != nil {
		return nil, err
	}
	b.PaymentMethods = methods

	return &b, nil
}

func (r *buyerRepo) paymentMethods(ctx context.Context, tx pgx.Tx, buyerID int64) ([]domain.PaymentMethod, error) {
	query := `
		SELECT id, buyer_id, alias, card_type_id, card_number, cardholder_name, expiration, security_number
		FROM payment_methods
		WHERE buyer_id = $1
		ORDER BY id
	`

	rows, err := tx.Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("query payment methods: %w", err)
	}
	defer rows.Close()

	var result []domain.PaymentMethod
	for rows.Next() {
		var pm domain.PaymentMethod
		if err := rows.Scan(
			&pm.ID,
			&pm.BuyerID,
			&pm.Alias,
			&pm.CardTypeID,
			&pm.CardNumber,
			&pm.CardholderName,
			&pm.Expiration,
			&pm.SecurityNumber,
		); err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		result = append(result, pm)
	}

	return result, rows.Err()
}

func (r *buyerRepo) Upsert(ctx context.Context, tx pgx.Tx, buyer *domain.Buyer) error {
	ctx, span := r.tracer.Start(ctx, "BuyerRepository.Upsert")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", buyer.UserID))

	query := `
		INSERT INTO buyers (user_id, name)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, name, created_at, updated_at
	`

	if err := tx.QueryRow(ctx, query, buyer.UserID, buyer.Name).
		Scan(&buyer.ID, &buyer.Name, &buyer.CreatedAt, &buyer.UpdatedAt); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to upsert buyer", zap.String("user_id", buyer.UserID), zap.Error(err))
		return fmt.Errorf("upsert buyer %s: %w", buyer.UserID, err)
	}

	return nil
}

func (r *buyerRepo) AddPaymentMethod(ctx context.Context, tx pgx.Tx, pm *domain.PaymentMethod) error {
	ctx, span := r.tracer.Start(ctx, "BuyerRepository.AddPaymentMethod")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("buyer_id", pm.BuyerID),
		attribute.Int("card_type_id", pm.CardTypeID),
	)

	query := `
		INSERT INTO payment_methods (buyer_id, alias, card_type_id, card_number, cardholder_name, expiration, security_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (buyer_id, card_type_id, card_number, expiration)
		DO UPDATE SET buyer_id = EXCLUDED.buyer_id
		RETURNING id
	`

	if err := tx.QueryRow(
		ctx,
		query,
		pm.BuyerID,
		pm.Alias,
		pm.CardTypeID,
		pm.CardNumber,
		pm.CardholderName,
		pm.Expiration,
		pm.SecurityNumber,
	).Scan(&pm.ID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to add payment method", zap.Int64("buyer_id", pm.BuyerID), zap.Error(err))
		return fmt.Errorf("add payment method for buyer %d: %w", pm.BuyerID, err)
	}

	return nil
}
