package domain

import (
	"fmt"
	"strings"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/shopspring/decimal"
)

// UpdateBasketInput replaces every item of a buyer's basket.
type UpdateBasketInput struct {
	Items []generalDomain.BasketItem `json:"items" validate:"dive"`
}

// CheckoutInput is what the buyer submits on checkout. The basket itself is
// read from storage.
type CheckoutInput struct {
	UserName string `json:"user_name" validate:"required,max=100"`
	generalDomain.Address
	generalDomain.CardDetails
}

// NewBasket builds a basket from the submitted items. Items without an id get
// one from newID; prices must be non-negative.
func NewBasket(buyerID string, in UpdateBasketInput, newID func() string) (*generalDomain.Basket, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer id is required", generalDomain.ErrValidation)
	}

	items := make([]generalDomain.BasketItem, 0, len(in.Items))
	for _, item := range in.Items {
		if item.UnitPrice.IsNegative() || item.OldUnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: product %d has a negative price", generalDomain.ErrValidation, item.ProductID)
		}
		if item.ID == "" {
			item.ID = newID()
		}
		items = append(items, item)
	}

	return &generalDomain.Basket{BuyerID: buyerID, Items: items}, nil
}

// EmptyBasket is returned for buyers with nothing stored yet.
func EmptyBasket(buyerID string) *generalDomain.Basket {
	return &generalDomain.Basket{BuyerID: buyerID, Items: []generalDomain.BasketItem{}}
}

func Total(b *generalDomain.Basket) decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// NewCheckoutAccepted snapshots the basket into the event the order saga starts from.
func NewCheckoutAccepted(b *generalDomain.Basket, in CheckoutInput) (*generalDomain.UserCheckoutAccepted, error) {
	if len(b.Items) == 0 {
		return nil, fmt.Errorf("%w: basket of %s is empty", generalDomain.ErrValidation, b.BuyerID)
	}

	return &generalDomain.UserCheckoutAccepted{
		UserID:      b.BuyerID,
		UserName:    in.UserName,
		Address:     in.Address,
		CardDetails: in.CardDetails,
		Basket:      *b,
	}, nil
}
