package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

const productColumns = `id, name, description, price, image_url, category, created_at, updated_at`

type ProductRepository interface {
	Create(ctx context.Context, tx pgx.Tx, product *domain.Product) (int64, error)
	GetByID(ctx context.Context, tx pgx.Tx, id int64) (*domain.Product, error)
	// Update writes the set fields of input and returns the stored product.
	Update(ctx context.Context, tx pgx.Tx, id int64, input *domain.UpdateProductInput, now time.Time) (*domain.Product, error)
}

type productRepo struct {
	tracer trace.Tracer
	logger *zap.Logger
}

func NewProductRepository(logger *zap.Logger) ProductRepository {
	return &productRepo{
		logger: logger,
		tracer: otel.Tracer("contract/product_repo"),
	}
}

func (r *productRepo) Update(ctx context.Context, tx pgx.Tx, id int64, input *domain.UpdateProductInput, now time.Time) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	if input.Empty() {
		return r.GetByID(ctx, tx, id)
	}

	var args []any
	argId := 1

	var updates []string

	set := func(column string, value any) {
		updates = append(updates, fmt.Sprintf("%s = $%d", column, argId))
		args = append(args, value)
		argId++
	}

	if input.Name != nil {
		set("name", strings.TrimSpace(*input.Name))
	}

	if input.Description != nil {
		set("description", *input.Description)
	}

	if input.Price != nil {
		set("price", *input.Price)
	}

	if input.ImageUrl != nil {
		set("image_url", *input.ImageUrl)
	}

	if input.Category != nil {
		set("category", *input.Category)
	}

	set("updated_at", now)

	query := "UPDATE products SET " + strings.Join(updates, ", ") +
		fmt.Sprintf(" WHERE id = $%d RETURNING %s", argId, productColumns)
	args = append(args, id)

	product, err := scanProduct(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%d: %w", id, ErrProductNotFound)
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrProductExists
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to Update product",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error updating product: %w", err)
	}

	return product, nil
}

func (r *productRepo) Create(ctx context.Context, tx pgx.Tx, product *domain.Product) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("name", product.Name),
	)

	query := `
		INSERT INTO products (name, description, price, image_url, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id;
	`

	err := tx.QueryRow(
		ctx,
		query,
		product.Name,
		product.Description,
		product.Price,
		product.ImageUrl,
		product.Category,
		product.CreatedAt,
	).Scan(&product.ID)
	if err != nil {
		span.RecordError(err)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrProductExists
		}

		mylogger.Error(
			ctx,
			r.logger,
			"Error creating product",
			zap.Error(err),
		)

		return 0, fmt.Errorf("error creating product: %w", err)
	}

	return product.ID, nil
}

func (r *productRepo) GetByID(ctx context.Context, tx pgx.Tx, id int64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%d: %w", id, ErrProductNotFound)
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error get by id",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting product: %w", err)
	}

	return product, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var res domain.Product
	if err := row.Scan(
		&res.ID, &res.Name, &res.Description, &res.Price,
		&res.ImageUrl, &res.Category, &res.CreatedAt, &res.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &res, nil
}
