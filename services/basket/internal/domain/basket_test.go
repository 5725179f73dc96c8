package domain

import (
	"errors"
	"testing"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(productID int64, price string, qty int) generalDomain.BasketItem {
	return generalDomain.BasketItem{
		ProductID:   productID,
		ProductName: "product",
		UnitPrice:   decimal.RequireFromString(price),
		Quantity:    qty,
	}
}

func TestNewBasket_AssignsMissingIDs(t *testing.T) {
	kept := item(1, "2.50", 1)
	kept.ID = "existing"

	basket, err := NewBasket(" 42 ", UpdateBasketInput{Items: []generalDomain.BasketItem{kept, item(2, "1.00", 3)}}, func() string { return "new" })
	require.NoError(t, err)

	assert.Equal(t, "42", basket.BuyerID)
	require.Len(t, basket.Items, 2)
	assert.Equal(t, "existing", basket.Items[0].ID)
	assert.Equal(t, "new", basket.Items[1].ID)
	assert.True(t, decimal.RequireFromString("5.50").Equal(Total(basket)))
}

func TestNewBasket_Rejects(t *testing.T) {
	_, err := NewBasket("", UpdateBasketInput{}, func() string { return "x" })
	assert.True(t, errors.Is(err, generalDomain.ErrValidation))

	_, err = NewBasket("7", UpdateBasketInput{Items: []generalDomain.BasketItem{item(1, "-1", 1)}}, func() string { return "x" })
	assert.True(t, errors.Is(err, generalDomain.ErrValidation))
}

func TestNewCheckoutAccepted(t *testing.T) {
	in := CheckoutInput{
		UserName:    "Ann",
		Address:     generalDomain.Address{Street1: "1 Main", City: "Springfield", ZipCode: "11111", Country: "US"},
		CardDetails: generalDomain.CardDetails{CardNumber: "4111111111111111", CardholderName: "Ann", Expiration: "12/30", CardTypeID: 1},
	}

	_, err := NewCheckoutAccepted(EmptyBasket("7"), in)
	assert.True(t, errors.Is(err, generalDomain.ErrValidation))

	basket := &generalDomain.Basket{BuyerID: "7", Items: []generalDomain.BasketItem{item(3, "4.00", 2)}}
	event, err := NewCheckoutAccepted(basket, in)
	require.NoError(t, err)

	assert.Equal(t, "7", event.UserID)
	assert.Equal(t, "Ann", event.UserName)
	assert.Equal(t, "Springfield", event.City)
	assert.Equal(t, 1, event.CardTypeID)
	assert.Len(t, event.Basket.Items, 1)
}
