package service

import (
	"context"
	"strconv"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/bus"
	"github.com/bsmi021/eahub-shopco/pkg/db"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/repository"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const aggregateSite = "site"

type SiteService interface {
	Create(ctx context.Context, in domain.SiteInput) (*domain.Site, error)
	Update(ctx context.Context, siteID int64, update domain.SiteUpdate) (*domain.Site, error)
}

type siteService struct {
	pool     db.TxStarter
	logger   *zap.Logger
	siteRepo repository.SiteRepository
	emitter  bus.Emitter
	now      func() time.Time
	tracer   trace.Tracer
}

func NewSiteService(pool db.TxStarter, logger *zap.Logger, siteRepo repository.SiteRepository, emitter bus.Emitter) SiteService {
	return &siteService{
		pool:     pool,
		logger:   logger,
		siteRepo: siteRepo,
		emitter:  emitter,
		now:      time.Now,
		tracer:   otel.Tracer("site_service"),
	}
}

func (s *siteService) Create(ctx context.Context, in domain.SiteInput) (*domain.Site, error) {
	ctx, span := s.tracer.Start(ctx, "SiteService.Create")
	defer span.End()

	site, err := domain.NewSite(in, s.now())
	if err != nil {
		return nil, err
	}

	err = db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		if err := s.siteRepo.Create(ctx, tx, site); err != nil {
			return err
		}
		return s.replicate(ctx, tx, site)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Site created", zap.Int64("site_id", site.ID), zap.String("name", site.Name))

	return site, nil
}

func (s *siteService) Update(ctx context.Context, siteID int64, update domain.SiteUpdate) (*domain.Site, error) {
	ctx, span := s.tracer.Start(ctx, "SiteService.Update")
	defer span.End()

	var site *domain.Site
	err := db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		site, err = s.siteRepo.GetForUpdate(ctx, tx, siteID)
		if err != nil {
			return err
		}

		if err := site.Apply(update, s.now()); err != nil {
			return err
		}

		if err := s.siteRepo.Update(ctx, tx, site); err != nil {
			return err
		}

		return s.replicate(ctx, tx, site)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Site updated", zap.Int64("site_id", site.ID))

	return site, nil
}

func (s *siteService) replicate(ctx context.Context, tx pgx.Tx, site *domain.Site) error {
	return s.emitter.Emit(ctx, tx, generalDomain.EventReplicateDB, aggregateSite,
		strconv.FormatInt(site.ID, 10), domain.NewSiteDocument(site))
}
