package domain

import (
	"fmt"
	"strings"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	ImageUrl    string
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateProductInput struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=1000"`
	Price       decimal.Decimal `json:"price"`
	ImageUrl    string          `json:"image_url" validate:"omitempty,url"`
	Category    string          `json:"category" validate:"required,max=50"`
}

// UpdateProductInput changes only the fields that are set.
type UpdateProductInput struct {
	Name        *string          `json:"name" validate:"omitempty,max=100"`
	Description *string          `json:"description" validate:"omitempty,max=1000"`
	Price       *decimal.Decimal `json:"price"`
	ImageUrl    *string          `json:"image_url" validate:"omitempty,url"`
	Category    *string          `json:"category" validate:"omitempty,max=50"`
}

func (in UpdateProductInput) Empty() bool {
	return in.Name == nil && in.Description == nil && in.Price == nil && in.ImageUrl == nil && in.Category == nil
}

func NewProduct(in CreateProductInput, now time.Time) (*Product, error) {
	if err := checkPrice(in.Price); err != nil {
		return nil, err
	}

	return &Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		ImageUrl:    in.ImageUrl,
		Category:    in.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (in UpdateProductInput) Validate() error {
	if in.Price != nil {
		return checkPrice(*in.Price)
	}
	return nil
}

func checkPrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", generalDomain.ErrValidation)
	}
	if price.Exponent() < -2 {
		return fmt.Errorf("%w: price has more than two decimals", generalDomain.ErrValidation)
	}
	return nil
}

// ProductDocument is the replicated read model of a product.
type ProductDocument struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageUrl    string          `json:"image_url"`
	Category    string          `json:"category"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewProductDocument(p *Product) ProductDocument {
	return ProductDocument{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageUrl:    p.ImageUrl,
		Category:    p.Category,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
