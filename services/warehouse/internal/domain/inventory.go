package domain

import (
	"math/rand/v2"
	"sort"
	"time"
)

// InventoryItem is one version of the stock ledger of a product at a site.
// Only the highest version per (product, site) is current; older versions
// are kept as history.
type InventoryItem struct {
	ID                int64
	Version           int64
	ProductID         int64
	SiteID            int64
	OnReorder         bool
	RestockThreshold  int
	MaxStockThreshold int
	AvailableStock    int
	CommittedStock    int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewInventoryItem seeds a first version with random bounds that keep
// restock < available <= max.
func NewInventoryItem(productID, siteID int64, rng *rand.Rand, now time.Time) *InventoryItem {
	maxStock := 105 + rng.IntN(1050-105+1)
	restock := 10 + rng.IntN(50-10+1)
	floor := restock + 5
	available := floor + rng.IntN(maxStock-floor+1)

	return &InventoryItem{
		Version:           1,
		ProductID:         productID,
		SiteID:            siteID,
		RestockThreshold:  restock,
		MaxStockThreshold: maxStock,
		AvailableStock:    available,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Next returns a copy of the item as the following version.
func (i *InventoryItem) Next(now time.Time) *InventoryItem {
	next := *i
	next.Version++
	next.UpdatedAt = now
	return &next
}

// RemoveStock takes up to quantity units and reports how many were taken.
func (i *InventoryItem) RemoveStock(quantity int) int {
	if i.AvailableStock == 0 || quantity <= 0 {
		return 0
	}

	removed := min(quantity, i.AvailableStock)
	i.AvailableStock -= removed

	if i.AvailableStock <= i.RestockThreshold {
		i.OnReorder = true
	}

	return removed
}

// AddStock adds up to the max stock threshold; the excess is discarded.
func (i *InventoryItem) AddStock(quantity int) int {
	if quantity <= 0 {
		return 0
	}

	original := i.AvailableStock
	i.AvailableStock = min(i.AvailableStock+quantity, i.MaxStockThreshold)
	i.OnReorder = false

	return i.AvailableStock - original
}

// CurrentStock sums the available stock of the current row of every site.
func CurrentStock(current []InventoryItem) int {
	total := 0
	for _, item := range current {
		total += item.AvailableStock
	}
	return total
}

// PlanDebit drains units from the current rows, fullest site first and ties
// by site id. It returns the new versions to write and the units removed.
func PlanDebit(current []InventoryItem, units int, now time.Time) ([]*InventoryItem, int) {
	ordered := make([]InventoryItem, len(current))
	copy(ordered, current)

	sort.Slice(ordered, func(a, b int) bool {
		if ordered[a].AvailableStock != ordered[b].AvailableStock {
			return ordered[a].AvailableStock > ordered[b].AvailableStock
		}
		return ordered[a].SiteID < ordered[b].SiteID
	})

	var (
		touched []*InventoryItem
		removed int
	)

	for i := range ordered {
		if removed == units {
			break
		}

		next := ordered[i].Next(now)
		if taken := next.RemoveStock(units - removed); taken > 0 {
			removed += taken
			touched = append(touched, next)
		}
	}

	return touched, removed
}

// SelectSites picks a random non-empty subset of sites, ordered by id.
func SelectSites(sites []Site, rng *rand.Rand) []Site {
	if len(sites) == 0 {
		return nil
	}

	n := 1 + rng.IntN(len(sites))
	picked := make([]Site, 0, n)
	for _, idx := range rng.Perm(len(sites))[:n] {
		picked = append(picked, sites[idx])
	}

	sort.Slice(picked, func(a, b int) bool { return picked[a].ID < picked[b].ID })

	return picked
}

type Availability struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
	HasStock  bool  `json:"has_stock"`
}

func CheckAvailability(productID int64, current []InventoryItem, units int) Availability {
	available := CurrentStock(current)

	return Availability{
		ProductID: productID,
		Requested: units,
		Available: available,
		HasStock:  available >= units,
	}
}

// InventoryDocument is the replicated read model of the current version.
type InventoryDocument struct {
	ID                int64     `json:"id"`
	Version           int64     `json:"version"`
	ProductID         int64     `json:"product_id"`
	SiteID            int64     `json:"site_id"`
	OnReorder         bool      `json:"on_reorder"`
	RestockThreshold  int       `json:"restock_threshold"`
	MaxStockThreshold int       `json:"max_stock_threshold"`
	AvailableStock    int       `json:"available_stock"`
	CommittedStock    int       `json:"committed_stock"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func NewInventoryDocument(i *InventoryItem) InventoryDocument {
	return InventoryDocument{
		ID:                i.ID,
		Version:           i.Version,
		ProductID:         i.ProductID,
		SiteID:            i.SiteID,
		OnReorder:         i.OnReorder,
		RestockThreshold:  i.RestockThreshold,
		MaxStockThreshold: i.MaxStockThreshold,
		AvailableStock:    i.AvailableStock,
		CommittedStock:    i.CommittedStock,
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
	}
}
