package service

import (
	"context"
	"strconv"

	"github.com/bsmi021/eahub-shopco/pkg/querystore"
)

const (
	IndexProductID = "product_id"
	IndexSiteID    = "site_id"

	// a product is stocked at a handful of sites; one page holds them all
	productPageSize = 100
)

type DocumentStore interface {
	Get(ctx context.Context, id string) (querystore.Document, error)
	List(ctx context.Context, page, limit int) ([]querystore.Document, int64, error)
	ListBy(ctx context.Context, field, value string, page, limit int) ([]querystore.Document, int64, error)
}

type Page struct {
	Items []querystore.Document `json:"items"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

// InventoryQueryService reads the current inventory rows projected from command_item.
type InventoryQueryService struct {
	store DocumentStore
}

func NewInventoryQueryService(store DocumentStore) *InventoryQueryService {
	return &InventoryQueryService{store: store}
}

func (s *InventoryQueryService) ByProduct(ctx context.Context, productID int64) ([]querystore.Document, error) {
	docs, _, err := s.store.ListBy(ctx, IndexProductID, strconv.FormatInt(productID, 10), 1, productPageSize)
	return docs, err
}

func (s *InventoryQueryService) BySite(ctx context.Context, siteID int64, page, limit int) (*Page, error) {
	page, limit = querystore.Normalize(page, limit)

	docs, total, err := s.store.ListBy(ctx, IndexSiteID, strconv.FormatInt(siteID, 10), page, limit)
	if err != nil {
		return nil, err
	}

	return &Page{Items: docs, Total: total, Page: page, Limit: limit}, nil
}

// SiteQueryService reads the site documents projected from command_site.
type SiteQueryService struct {
	store DocumentStore
}

func NewSiteQueryService(store DocumentStore) *SiteQueryService {
	return &SiteQueryService{store: store}
}

func (s *SiteQueryService) Get(ctx context.Context, siteID int64) (querystore.Document, error) {
	return s.store.Get(ctx, strconv.FormatInt(siteID, 10))
}

func (s *SiteQueryService) List(ctx context.Context, page, limit int) (*Page, error) {
	page, limit = querystore.Normalize(page, limit)

	docs, total, err := s.store.List(ctx, page, limit)
	if err != nil {
		return nil, err
	}

	return &Page{Items: docs, Total: total, Page: page, Limit: limit}, nil
}
