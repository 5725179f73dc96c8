package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/domain"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type SiteRepository interface {
	Create(ctx context.Context, tx pgx.Tx, site *domain.Site) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, siteID int64) (*domain.Site, error)
	Update(ctx context.Context, tx pgx.Tx, site *domain.Site) error
	All(ctx context.Context, tx pgx.Tx) ([]domain.Site, error)
}

type siteRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewSiteRepository(logger *zap.Logger) SiteRepository {
	return &siteRepo{
		logger: logger,
		tracer: otel.Tracer("site_repository"),
	}
}

func (r *siteRepo) Create(ctx context.Context, tx pgx.Tx, site *domain.Site) error {
	ctx, span := r.tracer.Start(ctx, "SiteRepository.Create")
	defer span.End()

	span.SetAttributes(attribute.String("name", site.Name))

	query := `
		INSERT INTO sites (name, zip_code, type_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	if err := tx.QueryRow(ctx, query, site.Name, site.ZipCode, site.TypeID, site.CreatedAt, site.UpdatedAt).
		Scan(&site.ID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to create site", zap.Error(err))
		return fmt.Errorf("create site: %w", err)
	}

	return nil
}

func (r *siteRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, siteID int64) (*domain.Site, error) {
	ctx, span := r.tracer.Start(ctx, "SiteRepository.GetForUpdate")
	defer span.End()

	span.SetAttributes(attribute.Int64("site_id", siteID))

	query := `
		SELECT id, name, zip_code, type_id, created_at, updated_at
		FROM sites
		WHERE id = $1
		FOR UPDATE
	`

	var site domain.Site
	err := tx.QueryRow(ctx, query, siteID).
		Scan(&site.ID, &site.Name, &site.ZipCode, &site.TypeID, &site.CreatedAt, &site.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("site %d: %w", siteID, ErrSiteNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load site %d: %w", siteID, err)
	}

	return &site, nil
}

func (r *siteRepo) Update(ctx context.Context, tx pgx.Tx, site *domain.Site) error {
	ctx, span := r.tracer.Start(ctx, "SiteRepository.Update")
	defer span.End()

	span.SetAttributes(attribute.Int64("site_id", site.ID))

	query := `
		UPDATE sites
		SET name = $1, zip_code = $2, type_id = $3, updated_at = $4
		WHERE id = $5
	`

	tag, err := tx.Exec(ctx, query, site.Name, site.ZipCode, site.TypeID, site.UpdatedAt, site.ID)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to update site", zap.Int64("site_id", site.ID), zap.Error(err))
		return fmt.Errorf("update site %d: %w", site.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("site %d: %w", site.ID, ErrSiteNotFound)
	}

	return nil
}

func (r *siteRepo) All(ctx context.Context, tx pgx.Tx) ([]domain.Site, error) {
	ctx, span := r.tracer.Start(ctx, "SiteRepository.All")
	defer span.End()

	rows, err := tx.Query(ctx, `SELECT id, name, zip_code, type_id, created_at, updated_at FROM sites ORDER BY id`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []domain.Site
	for rows.Next() {
		var site domain.Site
		if err := rows.Scan(&site.ID, &site.Name, &site.ZipCode, &site.TypeID, &site.CreatedAt, &site.UpdatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}

	return sites, rows.Err()
}
