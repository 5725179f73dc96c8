package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/bus"
	"github.com/bsmi021/eahub-shopco/pkg/db"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/catalog/internal/repository"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const aggregateProduct = "product"

type ProductService interface {
	Create(ctx context.Context, input domain.CreateProductInput) (*domain.Product, error)
	Update(ctx context.Context, id int64, input domain.UpdateProductInput) (*domain.Product, error)
}

type productService struct {
	productRepo repository.ProductRepository
	emitter     bus.Emitter
	pool        db.TxStarter
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

func NewProductService(
	productRepo repository.ProductRepository,
	emitter bus.Emitter,
	pool db.TxStarter,
	logger *zap.Logger,
) ProductService {
	return &productService{
		productRepo: productRepo,
		emitter:     emitter,
		pool:        pool,
		logger:      logger,
		tracer:      otel.Tracer("service/product_service"),
		now:         time.Now,
	}
}

// Create stores the product and announces it, so the warehouse stocks it and
// the read model picks it up.
func (s *productService) Create(ctx context.Context, input domain.CreateProductInput) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Create")
	defer span.End()

	product, err := domain.NewProduct(input, s.now())
	if err != nil {
		return nil, err
	}

	err = db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		id, err := s.productRepo.Create(ctx, tx, product)
		if err != nil {
			return err
		}

		key := strconv.FormatInt(id, 10)

		if err := s.emit(ctx, tx, generalDomain.EventProductAdded, key, generalDomain.ProductAdded{ProductID: id}); err != nil {
			return err
		}

		return s.emit(ctx, tx, generalDomain.EventReplicateDB, key, domain.NewProductDocument(product))
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, s.logger, "create error", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int64("product_id", product.ID))
	mylogger.Info(ctx, s.logger, "Product created", zap.Int64("product_id", product.ID), zap.String("name", product.Name))

	return product, nil
}

func (s *productService) Update(ctx context.Context, id int64, input domain.UpdateProductInput) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Update")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", id))

	if err := input.Validate(); err != nil {
		return nil, err
	}

	var product *domain.Product
	err := db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		product, err = s.productRepo.Update(ctx, tx, id, &input, s.now())
		if err != nil {
			return err
		}

		if input.Empty() {
			return nil
		}

		return s.emit(ctx, tx, generalDomain.EventReplicateDB, strconv.FormatInt(id, 10), domain.NewProductDocument(product))
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, s.logger, "update error", zap.Int64("product_id", id), zap.Error(err))
		return nil, err
	}

	return product, nil
}

func (s *productService) emit(ctx context.Context, tx pgx.Tx, event, key string, payload any) error {
	if err := s.emitter.Emit(ctx, tx, event, aggregateProduct, key, payload); err != nil {
		mylogger.Error(ctx, s.logger, "Error saving outbox event", zap.String("event", event), zap.Error(err))
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}
