package service

import (
	"context"
	"fmt"
	"sort"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/domain"
	"github.com/bsmi021/eahub-shopco/services/warehouse/internal/repository"
	"github.com/jackc/pgx/v5"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return pgx.ErrTxClosed }

type fakeStarter struct{}

func (fakeStarter) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type memInventory struct {
	nextID int64
	rows   []domain.InventoryItem
	// conflicts makes the next n inserts lose the version race
	conflicts int
	locked    []int64
}

func (m *memInventory) LockProduct(_ context.Context, _ pgx.Tx, productID int64) error {
	m.locked = append(m.locked, productID)
	return nil
}

func (m *memInventory) Current(_ context.Context, _ pgx.Tx, productID int64) ([]domain.InventoryItem, error) {
	latest := map[int64]domain.InventoryItem{}
	for _, row := range m.rows {
		if row.ProductID != productID {
			continue
		}
		if cur, ok := latest[row.SiteID]; !ok || row.Version > cur.Version {
			latest[row.SiteID] = row
		}
	}

	out := make([]domain.InventoryItem, 0, len(latest))
	for _, row := range latest {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out, nil
}

func (m *memInventory) CurrentAt(ctx context.Context, tx pgx.Tx, productID, siteID int64) (*domain.InventoryItem, error) {
	current, _ := m.Current(ctx, tx, productID)
	for _, row := range current {
		if row.SiteID == siteID {
			return &row, nil
		}
	}
	return nil, fmt.Errorf("product %d at site %d: %w", productID, siteID, repository.ErrInventoryNotFound)
}

func (m *memInventory) Insert(_ context.Context, _ pgx.Tx, item *domain.InventoryItem) error {
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrVersionConflict
	}

	for _, row := range m.rows {
		if row.ProductID == item.ProductID && row.SiteID == item.SiteID && row.Version == item.Version {
			return repository.ErrVersionConflict
		}
	}

	if item.ID == 0 {
		m.nextID++
		item.ID = m.nextID
	}
	m.rows = append(m.rows, *item)
	return nil
}

func (m *memInventory) History(_ context.Context, _ pgx.Tx, productID, siteID int64) ([]domain.InventoryItem, error) {
	var out []domain.InventoryItem
	for _, row := range m.rows {
		if row.ProductID == productID && row.SiteID == siteID {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, repository.ErrInventoryNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *memInventory) seed(id, productID, siteID, version int64, available int) {
	m.rows = append(m.rows, domain.InventoryItem{
		ID:                id,
		Version:           version,
		ProductID:         productID,
		SiteID:            siteID,
		RestockThreshold:  10,
		MaxStockThreshold: 500,
		AvailableStock:    available,
	})
	if id > m.nextID {
		m.nextID = id
	}
}

type memSites struct {
	nextID int64
	sites  map[int64]domain.Site
}

func newMemSites(ids ...int64) *memSites {
	m := &memSites{sites: map[int64]domain.Site{}}
	for _, id := range ids {
		m.sites[id] = domain.Site{ID: id, Name: fmt.Sprintf("site-%d", id), ZipCode: "10001", TypeID: 1}
		if id > m.nextID {
			m.nextID = id
		}
	}
	return m
}

func (m *memSites) Create(_ context.Context, _ pgx.Tx, site *domain.Site) error {
	m.nextID++
	site.ID = m.nextID
	m.sites[site.ID] = *site
	return nil
}

func (m *memSites) GetForUpdate(_ context.Context, _ pgx.Tx, id int64) (*domain.Site, error) {
	site, ok := m.sites[id]
	if !ok {
		return nil, fmt.Errorf("site %d: %w", id, repository.ErrSiteNotFound)
	}
	return &site, nil
}

func (m *memSites) Update(_ context.Context, _ pgx.Tx, site *domain.Site) error {
	m.sites[site.ID] = *site
	return nil
}

func (m *memSites) All(context.Context, pgx.Tx) ([]domain.Site, error) {
	out := make([]domain.Site, 0, len(m.sites))
	for _, site := range m.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memDebits struct {
	debits map[int64][]generalDomain.DebitedStockItem
}

func (m *memDebits) Find(_ context.Context, _ pgx.Tx, orderID int64) ([]generalDomain.DebitedStockItem, bool, error) {
	items, ok := m.debits[orderID]
	return items, ok, nil
}

func (m *memDebits) Save(_ context.Context, _ pgx.Tx, orderID int64, items []generalDomain.DebitedStockItem) error {
	if _, ok := m.debits[orderID]; ok {
		return repository.ErrVersionConflict
	}
	m.debits[orderID] = items
	return nil
}

type emitted struct {
	event         string
	aggregateType string
	key           string
	payload       any
}

type recEmitter struct {
	events []emitted
}

func (r *recEmitter) Emit(_ context.Context, _ pgx.Tx, event, aggregateType, aggregateID string, payload any) error {
	r.events = append(r.events, emitted{event: event, aggregateType: aggregateType, key: aggregateID, payload: payload})
	return nil
}

func (r *recEmitter) only(event string) []emitted {
	var out []emitted
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}
