package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/bsmi021/eahub-shopco/pkg/bus"
	"github.com/bsmi021/eahub-shopco/pkg/config"
	"github.com/bsmi021/eahub-shopco/pkg/db"
	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/pkg/metrics"
	"github.com/bsmi021/eahub-shopco/pkg/mylogger"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/repository"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	aggregateInventoryItem = "inventory_item"
	aggregateOrder         = "order"
)

type InventoryService interface {
	AddInventoryForProduct(ctx context.Context, event generalDomain.ProductAdded) error
	VerifyOrder(ctx context.Context, event generalDomain.OrderAwaitingValidation) error
	DebitOrder(ctx context.Context, event generalDomain.OrderPaid) error
	AddStock(ctx context.Context, productID, siteID int64, quantity int) (*StockChange, error)
	RemoveStock(ctx context.Context, productID, siteID int64, quantity int) (*StockChange, error)
	CheckAvailability(ctx context.Context, productID int64, units int) (domain.Availability, error)
	History(ctx context.Context, productID, siteID int64) ([]domain.InventoryItem, error)
}

// StockChange is the version written by a stock command and the units it moved.
type StockChange struct {
	Item    *domain.InventoryItem `json:"-"`
	Changed int                   `json:"changed"`
}

type inventoryService struct {
	pool          db.TxStarter
	logger        *zap.Logger
	inventoryRepo repository.InventoryRepository
	siteRepo      repository.SiteRepository
	debitRepo     repository.DebitRepository
	emitter       bus.Emitter
	cfg           config.Inventory
	now           func() time.Time
	tracer        trace.Tracer

	mu  sync.Mutex
	rng *rand.Rand
}

func NewInventoryService(
	pool db.TxStarter,
	logger *zap.Logger,
	inventoryRepo repository.InventoryRepository,
	siteRepo repository.SiteRepository,
	debitRepo repository.DebitRepository,
	emitter bus.Emitter,
	cfg config.Inventory,
	rng *rand.Rand,
) InventoryService {
	if cfg.MaxCASRetries == 0 {
		cfg.MaxCASRetries = 8
	}

	return &inventoryService{
		pool:          pool,
		logger:        logger,
		inventoryRepo: inventoryRepo,
		siteRepo:      siteRepo,
		debitRepo:     debitRepo,
		emitter:       emitter,
		cfg:           cfg,
		now:           time.Now,
		tracer:        otel.Tracer("inventory_service"),
		rng:           rng,
	}
}

// AddInventoryForProduct stocks a new product at a random subset of sites. A
// product that is already stocked anywhere is left alone; the product lock
// keeps concurrent deliveries from both seeing it unstocked.
func (s *inventoryService) AddInventoryForProduct(ctx context.Context, event generalDomain.ProductAdded) error {
	ctx, span := s.tracer.Start(ctx, "InventoryService.AddInventoryForProduct")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", event.ProductID))

	var created int
	err := s.inCASTx(ctx, func(tx pgx.Tx) error {
		created = 0

		if err := s.inventoryRepo.LockProduct(ctx, tx, event.ProductID); err != nil {
			return err
		}

		current, err := s.inventoryRepo.Current(ctx, tx, event.ProductID)
		if err != nil {
			return err
		}
		if len(current) > 0 {
			mylogger.Info(ctx, s.logger, "Product already stocked",
				zap.Int64("product_id", event.ProductID),
				zap.Int("sites", len(current)),
			)
			return nil
		}

		sites, err := s.siteRepo.All(ctx, tx)
		if err != nil {
			return err
		}

		now := s.now()
		for _, site := range s.pickSites(sites) {
			item := s.seedItem(event.ProductID, site.ID, now)

			if err := s.inventoryRepo.Insert(ctx, tx, item); err != nil {
				return err
			}

			if err := s.replicate(ctx, tx, item); err != nil {
				return err
			}
			created++
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if created == 0 {
		mylogger.Warn(ctx, s.logger, "No inventory created for product", zap.Int64("product_id", event.ProductID))
		return nil
	}

	mylogger.Info(ctx, s.logger, "Inventory created for product",
		zap.Int64("product_id", event.ProductID),
		zap.Int("sites", created),
	)

	return nil
}

// VerifyOrder confirms an order only when every line is covered by the sum of
// the current rows across all sites. Nothing is reserved.
func (s *inventoryService) VerifyOrder(ctx context.Context, event generalDomain.OrderAwaitingValidation) error {
	ctx, span := s.tracer.Start(ctx, "InventoryService.VerifyOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", event.OrderID))

	return db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		checked := make([]generalDomain.StockCheckItem, 0, len(event.OrderStockItems))
		allInStock := true

		for _, line := range event.OrderStockItems {
			current, err := s.inventoryRepo.Current(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}

			availability := domain.CheckAvailability(line.ProductID, current, line.Units)
			checked = append(checked, generalDomain.StockCheckItem{
				ProductID: line.ProductID,
				HasStock:  availability.HasStock,
			})

			if !availability.HasStock {
				allInStock = false
			}
		}

		key := strconv.FormatInt(event.OrderID, 10)

		if allInStock {
			mylogger.Info(ctx, s.logger, "Order stock confirmed", zap.Int64("order_id", event.OrderID))

			return s.emit(ctx, tx, generalDomain.EventConfirmedOrderStock, aggregateOrder, key,
				generalDomain.ConfirmedOrderStock{OrderID: event.OrderID})
		}

		mylogger.Info(ctx, s.logger, "Order stock rejected", zap.Int64("order_id", event.OrderID))

		return s.emit(ctx, tx, generalDomain.EventRejectedOrderStock, aggregateOrder, key,
			generalDomain.RejectedOrderStock{OrderID: event.OrderID, OrderStockItems: checked})
	})
}

// DebitOrder removes a paid order's units once. Redelivery re-emits the
// recorded result without touching the ledger.
func (s *inventoryService) DebitOrder(ctx context.Context, event generalDomain.OrderPaid) error {
	ctx, span := s.tracer.Start(ctx, "InventoryService.DebitOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", event.OrderID))

	var (
		result   []generalDomain.DebitedStockItem
		replayed bool
	)

	err := s.inCASTx(ctx, func(tx pgx.Tx) error {
		key := strconv.FormatInt(event.OrderID, 10)

		recorded, found, err := s.debitRepo.Find(ctx, tx, event.OrderID)
		if err != nil {
			return err
		}
		if found {
			result, replayed = recorded, true
			return s.emit(ctx, tx, generalDomain.EventOrderStockDebited, aggregateOrder, key,
				generalDomain.OrderStockDebited{OrderID: event.OrderID, Items: recorded})
		}

		result, replayed = make([]generalDomain.DebitedStockItem, 0, len(event.OrderStockItems)), false
		now := s.now()

		for _, line := range event.OrderStockItems {
			current, err := s.inventoryRepo.Current(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}

			touched, removed := domain.PlanDebit(current, line.Units, now)
			for _, item := range touched {
				if err := s.inventoryRepo.Insert(ctx, tx, item); err != nil {
					return err
				}
				if err := s.replicate(ctx, tx, item); err != nil {
					return err
				}
			}

			result = append(result, generalDomain.DebitedStockItem{
				ProductID: line.ProductID,
				Requested: line.Units,
				Removed:   removed,
			})
		}

		if err := s.debitRepo.Save(ctx, tx, event.OrderID, result); err != nil {
			return err
		}

		return s.emit(ctx, tx, generalDomain.EventOrderStockDebited, aggregateOrder, key,
			generalDomain.OrderStockDebited{OrderID: event.OrderID, Items: result})
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if replayed {
		mylogger.Info(ctx, s.logger, "Order already debited, acknowledgement re-sent", zap.Int64("order_id", event.OrderID))
		return nil
	}

	for _, item := range result {
		if short := item.Requested - item.Removed; short > 0 {
			metrics.InventoryShortfall.WithLabelValues(strconv.FormatInt(item.ProductID, 10)).Add(float64(short))
			mylogger.Warn(ctx, s.logger, "Paid order debited with shortfall",
				zap.Int64("order_id", event.OrderID),
				zap.Int64("product_id", item.ProductID),
				zap.Int("requested", item.Requested),
				zap.Int("removed", item.Removed),
			)
		}
	}

	mylogger.Info(ctx, s.logger, "Order stock debited", zap.Int64("order_id", event.OrderID))

	return nil
}

func (s *inventoryService) AddStock(ctx context.Context, productID, siteID int64, quantity int) (*StockChange, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.AddStock")
	defer span.End()

	return s.changeStock(ctx, productID, siteID, quantity, (*domain.InventoryItem).AddStock)
}

func (s *inventoryService) RemoveStock(ctx context.Context, productID, siteID int64, quantity int) (*StockChange, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.RemoveStock")
	defer span.End()

	return s.changeStock(ctx, productID, siteID, quantity, (*domain.InventoryItem).RemoveStock)
}

// changeStock writes a new version only when the command moves units or flips
// the reorder flag. A non-positive quantity is a no-op.
func (s *inventoryService) changeStock(
	ctx context.Context,
	productID, siteID int64,
	quantity int,
	apply func(item *domain.InventoryItem, quantity int) int,
) (*StockChange, error) {
	var change StockChange
	err := s.inCASTx(ctx, func(tx pgx.Tx) error {
		current, err := s.inventoryRepo.CurrentAt(ctx, tx, productID, siteID)
		if err != nil {
			return err
		}

		if quantity <= 0 {
			change = StockChange{Item: current}
			return nil
		}

		next := current.Next(s.now())
		change = StockChange{Item: next, Changed: apply(next, quantity)}

		if change.Changed == 0 && next.OnReorder == current.OnReorder {
			change.Item = current
			return nil
		}

		if err := s.inventoryRepo.Insert(ctx, tx, next); err != nil {
			return err
		}

		return s.replicate(ctx, tx, next)
	})
	if err != nil {
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Stock changed",
		zap.Int64("product_id", productID),
		zap.Int64("site_id", siteID),
		zap.Int("changed", change.Changed),
		zap.Int64("version", change.Item.Version),
	)

	return &change, nil
}

func (s *inventoryService) CheckAvailability(ctx context.Context, productID int64, units int) (domain.Availability, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.CheckAvailability")
	defer span.End()

	var availability domain.Availability
	err := db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		current, err := s.inventoryRepo.Current(ctx, tx, productID)
		if err != nil {
			return err
		}

		availability = domain.CheckAvailability(productID, current, units)
		return nil
	})

	return availability, err
}

func (s *inventoryService) History(ctx context.Context, productID, siteID int64) ([]domain.InventoryItem, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.History")
	defer span.End()

	var items []domain.InventoryItem
	err := db.InTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		items, err = s.inventoryRepo.History(ctx, tx, productID, siteID)
		return err
	})

	return items, err
}

// inCASTx runs fn in a transaction and reruns the whole transaction when a
// version insert loses to a concurrent writer.
func (s *inventoryService) inCASTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	op := func() error {
		err := db.InTx(ctx, s.pool, s.logger, fn)
		if errors.Is(err, repository.ErrVersionConflict) {
			metrics.InventoryCASConflicts.Inc()
			mylogger.Debug(ctx, s.logger, "Inventory version conflict, retrying", zap.Error(err))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.MaxCASRetries), ctx))
	if errors.Is(err, repository.ErrVersionConflict) {
		return fmt.Errorf("%w: %w", generalDomain.ErrTransient, err)
	}

	return err
}

func (s *inventoryService) pickSites(sites []domain.Site) []domain.Site {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.SelectSites(sites, s.rng)
}

func (s *inventoryService) seedItem(productID, siteID int64, now time.Time) *domain.InventoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.NewInventoryItem(productID, siteID, s.rng, now)
}

func (s *inventoryService) replicate(ctx context.Context, tx pgx.Tx, item *domain.InventoryItem) error {
	return s.emit(ctx, tx, generalDomain.EventReplicateDB, aggregateInventoryItem,
		strconv.FormatInt(item.ID, 10), domain.NewInventoryDocument(item))
}

func (s *inventoryService) emit(ctx context.Context, tx pgx.Tx, event, aggregateType, aggregateID string, payload any) error {
	if err := s.emitter.Emit(ctx, tx, event, aggregateType, aggregateID, payload); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to save outbox event",
			zap.String("event", event),
			zap.String("aggregate_id", aggregateID),
			zap.Error(err),
		)
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}
