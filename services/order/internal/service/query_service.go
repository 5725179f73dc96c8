package service

import (
	"context"
	"strconv"

	"github.com/bsmi021/eahub-shopco/pkg/querystore"
)

const (
	IndexBuyerID    = "buyer_id"
	IndexCustomerID = "customer_id"
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

// Filter selects orders by one indexed field. An empty filter lists all.
type Filter struct {
	BuyerID    string
	CustomerID string
}

// OrderQueryService reads the order documents projected from command_orders.
type OrderQueryService struct {
	store DocumentStore
}

func NewOrderQueryService(store DocumentStore) *OrderQueryService {
	return &OrderQueryService{store: store}
}

func (s *OrderQueryService) Get(ctx context.Context, orderID int64) (querystore.Document, error) {
	return s.store.Get(ctx, strconv.FormatInt(orderID, 10))
}

func (s *OrderQueryService) List(ctx context.Context, filter Filter, page, limit int) (*Page, error) {
	page, limit = querystore.Normalize(page, limit)

	var (
		docs  []querystore.Document
		total int64
		err   error
	)

	switch {
	case filter.BuyerID != "":
		docs, total, err = s.store.ListBy(ctx, IndexBuyerID, filter.BuyerID, page, limit)
	case filter.CustomerID != "":
		docs, total, err = s.store.ListBy(ctx, IndexCustomerID, filter.CustomerID, page, limit)
	default:
		docs, total, err = s.store.List(ctx, page, limit)
	}
	if err != nil {
		return nil, err
	}

	return &Page{Items: docs, Total: total, Page: page, Limit: limit}, nil
}
