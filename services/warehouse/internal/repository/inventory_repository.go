package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

type InventoryRepository interface {
	// Current returns the highest version of every site holding the product.
	Current(ctx context.Context, tx pgx.Tx, productID int64) ([]domain.InventoryItem, error)
	CurrentAt(ctx context.Context, tx pgx.Tx, productID, siteID int64) (*domain.InventoryItem, error)
	// Insert appends a version. A lost race returns ErrVersionConflict.
	Insert(ctx context.Context, tx pgx.Tx, item *domain.InventoryItem) error
	History(ctx context.Context, tx pgx.Tx, productID, siteID int64) ([]domain.InventoryItem, error)
	// LockProduct serializes writers of one product until tx ends.
	LockProduct(ctx context.Context, tx pgx.Tx, productID int64) error
}

type inventoryRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewInventoryRepository(logger *zap.Logger) InventoryRepository {
	return &inventoryRepo{
		logger: logger,
		tracer: otel.Tracer("inventory_repository"),
	}
}

const inventoryColumns = `id, version, product_id, site_id, on_reorder, restock_threshold,
	max_stock_threshold, available_stock, committed_stock, created_at, updated_at`

func (r *inventoryRepo) LockProduct(ctx context.Context, tx pgx.Tx, productID int64) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.LockProduct")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", productID))

	query := `SELECT pg_advisory_xact_lock(hashtextextended('inventory_items:' || $1::text, 0))`

	if _, err := tx.Exec(ctx, query, productID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to lock product inventory", zap.Int64("product_id", productID), zap.Error(err))
		return fmt.Errorf("lock product %d: %w", productID, err)
	}

	return nil
}

func (r *inventoryRepo) Current(ctx context.Context, tx pgx.Tx, productID int64) ([]domain.InventoryItem, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Current")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", productID))

	query := `
		SELECT DISTINCT ON (site_id) ` + inventoryColumns + `
		FROM inventory_items
		WHERE product_id = $1
		ORDER BY site_id, version DESC
	`

	items, err := r.list(ctx, tx, query, productID)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to load current inventory", zap.Int64("product_id", productID), zap.Error(err))
		return nil, fmt.Errorf("current inventory of product %d: %w", productID, err)
	}

	return items, nil
}

func (r *inventoryRepo) CurrentAt(ctx context.Context, tx pgx.Tx, productID, siteID int64) (*domain.InventoryItem, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.CurrentAt")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
		attribute.Int64("site_id", siteID),
	)

	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory_items
		WHERE product_id = $1 AND site_id = $2
		ORDER BY version DESC
		LIMIT 1
	`

	item, err := scanItem(tx.QueryRow(ctx, query, productID, siteID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %d at site %d: %w", productID, siteID, ErrInventoryNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load inventory of product %d at site %d: %w", productID, siteID, err)
	}

	return item, nil
}

func (r *inventoryRepo) Insert(ctx context.Context, tx pgx.Tx, item *domain.InventoryItem) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", item.ProductID),
		attribute.Int64("site_id", item.SiteID),
		attribute.Int64("version", item.Version),
	)

	query := `
		INSERT INTO inventory_items (
			id, version, product_id, site_id, on_reorder, restock_threshold,
			max_stock_threshold, available_stock, committed_stock, created_at, updated_at
		)
		VALUES (
			COALESCE(NULLIF($1::BIGINT, 0), nextval('inventory_item_id_seq')),
			$2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		RETURNING id
	`

	err := tx.QueryRow(
		ctx,
		query,
		item.ID,
		item.Version,
		item.ProductID,
		item.SiteID,
		item.OnReorder,
		item.RestockThreshold,
		item.MaxStockThreshold,
		item.AvailableStock,
		item.CommittedStock,
		item.CreatedAt,
		item.UpdatedAt,
	).Scan(&item.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("product %d at site %d version %d: %w", item.ProductID, item.SiteID, item.Version, ErrVersionConflict)
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert inventory version",
			zap.Int64("product_id", item.ProductID),
			zap.Int64("site_id", item.SiteID),
			zap.Error(err),
		)
		return fmt.Errorf("insert inventory version: %w", err)
	}

	return nil
}

func (r *inventoryRepo) History(ctx context.Context, tx pgx.Tx, productID, siteID int64) ([]domain.InventoryItem, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.History")
	defer span.End()

	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory_items
		WHERE product_id = $1 AND site_id = $2
		ORDER BY version DESC
	`

	items, err := r.list(ctx, tx, query, productID, siteID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("inventory history of product %d at site %d: %w", productID, siteID, err)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("product %d at site %d: %w", productID, siteID, ErrInventoryNotFound)
	}

	return items, nil
}

func (r *inventoryRepo) list(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]domain.InventoryItem, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

func scanItem(row pgx.Row) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := row.Scan(
		&item.ID,
		&item.Version,
		&item.ProductID,
		&item.SiteID,
		&item.OnReorder,
		&item.RestockThreshold,
		&item.MaxStockThreshold,
		&item.AvailableStock,
		&item.CommittedStock,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
