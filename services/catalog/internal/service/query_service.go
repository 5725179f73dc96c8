package service

import (
	"context"
	"strconv"

	"github.com/bsmi021/eahub-shopco/pkg/querystore"
)

const IndexCategory = "category"

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

// ProductQueryService reads the catalog projection built from command_products.
type ProductQueryService struct {
	store DocumentStore
}

func NewProductQueryService(store DocumentStore) *ProductQueryService {
	return &ProductQueryService{store: store}
}

func (s *ProductQueryService) Get(ctx context.Context, id int64) (querystore.Document, error) {
	return s.store.Get(ctx, strconv.FormatInt(id, 10))
}

// List pages over all products, or over one category when it is set.
func (s *ProductQueryService) List(ctx context.Context, category string, page, limit int) (*Page, error) {
	page, limit = querystore.Normalize(page, limit)

	var (
		docs  []querystore.Document
		total int64
		err   error
	)

	if category != "" {
		docs, total, err = s.store.ListBy(ctx, IndexCategory, category, page, limit)
	} else {
		docs, total, err = s.store.List(ctx, page, limit)
	}
	if err != nil {
		return nil, err
	}

	return &Page{Items: docs, Total: total, Page: page, Limit: limit}, nil
}
