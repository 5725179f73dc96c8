package tests

import (
	"context"
	"errors"
	"sync"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	outboxUtils "github.com/bsmi021/eahub-shopco/pkg/outbox/utils"
	"go.uber.org/zap"
)

func (s *IntegrationTestSuite) TestAddInventoryForProduct() {
	s.createSite("North DC")
	s.createSite("South Store")

	s.Require().NoError(s.InventoryService.AddInventoryForProduct(s.Ctx, generalDomain.ProductAdded{ProductID: 42}))

	seeded := s.count(generalDomain.EventReplicateDB) - 2
	s.GreaterOrEqual(seeded, 1)
	s.Positive(s.available(42))

	// redelivered product_added seeds nothing new
	s.Require().NoError(s.InventoryService.AddInventoryForProduct(s.Ctx, generalDomain.ProductAdded{ProductID: 42}))
	s.Equal(seeded+2, s.count(generalDomain.EventReplicateDB))

	s.project()

	docs, err := s.InventoryQueries.ByProduct(s.Ctx, 42)
	s.Require().NoError(err)
	s.Len(docs, seeded)
}

func (s *IntegrationTestSuite) TestAddInventoryForProduct_ConcurrentDeliveriesSeedOnce() {
	for _, name := range []string{"North DC", "South Store", "East DC", "West Store"} {
		s.createSite(name)
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.InventoryService.AddInventoryForProduct(s.Ctx, generalDomain.ProductAdded{ProductID: 43}))
		}()
	}
	wg.Wait()

	var rows, seedings int
	err := s.DbPool.QueryRow(s.Ctx,
		`SELECT count(*), count(DISTINCT created_at) FROM inventory_items WHERE product_id = $1`, 43,
	).Scan(&rows, &seedings)
	s.Require().NoError(err)

	s.Positive(rows)
	s.Equal(1, seedings)
	s.Equal(rows+4, s.count(generalDomain.EventReplicateDB))
}

func (s *IntegrationTestSuite) TestVerifyOrder() {
	north := s.createSite("North DC")
	south := s.createSite("South Store")
	s.stock(7, north, 5)
	s.stock(7, south, 3)

	s.Require().NoError(s.InventoryService.VerifyOrder(s.Ctx, generalDomain.OrderAwaitingValidation{
		OrderID:         1,
		OrderStockItems: []generalDomain.OrderStockItem{{ProductID: 7, Units: 8}},
	}))
	s.Equal(1, s.count(generalDomain.EventConfirmedOrderStock))

	s.Require().NoError(s.InventoryService.VerifyOrder(s.Ctx, generalDomain.OrderAwaitingValidation{
		OrderID:         2,
		OrderStockItems: []generalDomain.OrderStockItem{{ProductID: 7, Units: 9}},
	}))

	var rejected generalDomain.RejectedOrderStock
	s.lastPayload(generalDomain.EventRejectedOrderStock, &rejected)
	s.Equal(int64(2), rejected.OrderID)
	s.Equal([]generalDomain.StockCheckItem{{ProductID: 7, HasStock: false}}, rejected.OrderStockItems)

	// verification reserves nothing
	s.Equal(8, s.available(7))
}

func (s *IntegrationTestSuite) TestDebitOrder_ReplayIsAcknowledgedOnce() {
	north := s.createSite("North DC")
	s.stock(7, north, 20)

	paid := generalDomain.OrderPaid{OrderID: 3, OrderStockItems: []generalDomain.OrderStockItem{{ProductID: 7, Units: 6}}}
	s.Require().NoError(s.InventoryService.DebitOrder(s.Ctx, paid))
	s.Require().NoError(s.InventoryService.DebitOrder(s.Ctx, paid))

	s.Equal(14, s.available(7))
	s.Equal(2, s.count(generalDomain.EventOrderStockDebited))

	history, err := s.InventoryService.History(s.Ctx, 7, north)
	s.Require().NoError(err)
	s.Len(history, 2)
	s.Equal(int64(2), history[0].Version)
}

func (s *IntegrationTestSuite) TestConcurrentDebitsKeepTheLedgerConsistent() {
	north := s.createSite("North DC")
	south := s.createSite("South Store")
	s.stock(7, north, 50)
	s.stock(7, south, 50)

	const orders = 10

	var wg sync.WaitGroup
	errs := make(chan error, orders)
	for i := 1; i <= orders; i++ {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()
			errs <- s.InventoryService.DebitOrder(context.Background(), generalDomain.OrderPaid{
				OrderID:         orderID,
				OrderStockItems: []generalDomain.OrderStockItem{{ProductID: 7, Units: 7}},
			})
		}(int64(i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.Require().NoError(err)
	}

	s.Equal(100-orders*7, s.available(7))

	var debits int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM order_stock_debits`).Scan(&debits))
	s.Equal(orders, debits)
}

func (s *IntegrationTestSuite) TestDebitOrder_ShortfallStopsAtZero() {
	north := s.createSite("North DC")
	s.stock(7, north, 4)

	s.Require().NoError(s.InventoryService.DebitOrder(s.Ctx, generalDomain.OrderPaid{
		OrderID:         9,
		OrderStockItems: []generalDomain.OrderStockItem{{ProductID: 7, Units: 10}},
	}))

	var debited generalDomain.OrderStockDebited
	s.lastPayload(generalDomain.EventOrderStockDebited, &debited)
	s.Equal([]generalDomain.DebitedStockItem{{ProductID: 7, Requested: 10, Removed: 4}}, debited.Items)
	s.Equal(0, s.available(7))
}

func (s *IntegrationTestSuite) TestStockCommandsAndReadModel() {
	north := s.createSite("North DC")
	s.stock(7, north, 100)

	change, err := s.InventoryService.RemoveStock(s.Ctx, 7, north, 95)
	s.Require().NoError(err)
	s.Equal(95, change.Changed)
	s.True(change.Item.OnReorder)

	change, err = s.InventoryService.AddStock(s.Ctx, 7, north, 2000)
	s.Require().NoError(err)
	s.Equal(995, change.Changed)
	s.Equal(int64(3), change.Item.Version)

	_, err = s.InventoryService.AddStock(s.Ctx, 7, north+100, 1)
	s.ErrorIs(err, generalDomain.ErrNotFound)

	s.project()

	page, err := s.InventoryQueries.BySite(s.Ctx, north, 1, 10)
	s.Require().NoError(err)
	s.Require().Len(page.Items, 1)

	stock, _ := page.Items[0].String("available_stock")
	s.Equal("1000", stock)

	site, err := s.SiteQueries.Get(s.Ctx, north)
	s.Require().NoError(err)
	name, _ := site.String("name")
	s.Equal("North DC", name)
}

func (s *IntegrationTestSuite) TestDeduplicatedDelivery() {
	north := s.createSite("North DC")
	s.stock(7, north, 20)

	paid := generalDomain.OrderPaid{OrderID: 4, OrderStockItems: []generalDomain.OrderStockItem{{ProductID: 7, Units: 5}}}
	action := func(ctx context.Context) error { return s.InventoryService.DebitOrder(ctx, paid) }

	for range 2 {
		err := outboxUtils.ProcessWithDeduplication(s.Ctx, s.DbPool, zap.NewNop(), generalDomain.SubscriberInventory, "evt-1", action)
		s.False(errors.Is(err, generalDomain.ErrTransient))
		s.Require().NoError(err)
	}

	s.Equal(1, s.count(generalDomain.EventOrderStockDebited))
	s.Equal(15, s.available(7))
}
