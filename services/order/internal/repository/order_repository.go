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

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	Get(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Order, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Order, error)
	Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error
}

type orderRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(logger *zap.Logger) OrderRepository {
	return &orderRepo{
		logger: logger,
		tracer: otel.Tracer("order_repository"),
	}
}

func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", order.CustomerID),
		attribute.Int("items_count", len(order.Items)),
	)

	queryAddress := `
		INSERT INTO addresses (street_1, street_2, city, state, zip_code, country)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var addressID int64
	a := order.Address
	if err := tx.QueryRow(ctx, queryAddress, a.Street1, a.Street2, a.City, a.State, a.ZipCode, a.Country).
		Scan(&addressID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert address", zap.Error(err))
		return fmt.Errorf("insert address: %w", err)
	}

	queryOrder := `
		INSERT INTO orders (customer_id, address_id, order_status_id, order_date, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.CustomerID,
		addressID,
		int(order.Status),
		order.OrderDate,
		order.Description,
	).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert order", zap.Error(err))
		return fmt.Errorf("insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, position, product_id, product_name, unit_price, discount, units)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		if err := tx.QueryRow(
			ctx,
			queryItem,
			order.ID,
			i,
			item.ProductID,
			item.ProductName,
			item.UnitPrice,
			item.Discount,
			item.Units,
		).Scan(&item.ID); err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, r.logger, "Failed to insert item", zap.Error(err))
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepo) Get(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Get")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	return r.load(ctx, span, tx, orderID, "")
}

// GetForUpdate loads the order and locks its row until tx ends.
func (r *orderRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetForUpdate")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	return r.load(ctx, span, tx, orderID, "FOR UPDATE OF o")
}

func (r *orderRepo) load(ctx context.Context, span trace.Span, tx pgx.Tx, orderID int64, lock string) (*domain.Order, error) {
	query := `
		SELECT o.id, o.customer_id, o.buyer_id, o.payment_method_id, o.order_status_id, o.order_date,
		       o.description, o.created_at, o.updated_at,
		       a.street_1, a.street_2, a.city, a.state, a.zip_code, a.country
		FROM orders o
		JOIN addresses a ON a.id = o.address_id
		WHERE o.id = $1
	` + lock

	var (
		order  domain.Order
		status int
	)
	err := tx.QueryRow(ctx, query, orderID).Scan(
		&order.ID,
		&order.CustomerID,
		&order.BuyerID,
		&order.PaymentMethodID,
		&status,
		&order.OrderDate,
		&order.Description,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Address.Street1,
		&order.Address.Street2,
		&order.Address.City,
		&order.Address.State,
		&order.Address.ZipCode,
		&order.Address.Country,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to load order", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	order.Status = domain.OrderStatus(status)

	items, err := r.items(ctx, tx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func (r *orderRepo) items(ctx context.Context, tx pgx.Tx, orderID int64) ([]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, unit_price, discount, units
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`

	rows, err := tx.Query(ctx, query, orderID)
	if err != nil {
		mylogger.Error(ctx, r.logger, "Failed to query order_items", zap.Error(err))
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var result []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.UnitPrice,
			&item.Discount,
			&item.Units,
		); err != nil {
			mylogger.Error(ctx, r.logger, "Failed to scan row", zap.Error(err))
			return nil, fmt.Errorf("scan order item: %w", err)
		}

		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return result, nil
}

func (r *orderRepo) Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", order.ID),
		attribute.String("status", order.Status.String()),
	)

	query := `
		UPDATE orders
		SET order_status_id = $1,
			buyer_id = $2,
			payment_method_id = $3,
			description = $4,
			updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		int(order.Status),
		order.BuyerID,
		order.PaymentMethodID,
		order.Description,
		order.ID,
	).Scan(&order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		mylogger.Warn(ctx, r.logger, "Order not found", zap.Int64("order_id", order.ID))
		return fmt.Errorf("order %d: %w", order.ID, ErrOrderNotFound)
	}
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to update order", zap.Error(err))
		return fmt.Errorf("update order %d: %w", order.ID, err)
	}

	return nil
}
