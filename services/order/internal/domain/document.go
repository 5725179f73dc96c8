package domain

import (
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/shopspring/decimal"
)

// OrderDocument is the replicated read model of an order.
type OrderDocument struct {
	ID              int64                  `json:"id"`
	CustomerID      string                 `json:"customer_id"`
	Address         generalDomain.Address  `json:"address"`
	OrderStatusID   int                    `json:"order_status_id"`
	OrderStatus     string                 `json:"order_status"`
	OrderDate       time.Time              `json:"order_date"`
	Description     string                 `json:"description"`
	Total           decimal.Decimal        `json:"total"`
	OrderItems      []OrderItemDocument    `json:"order_items"`
	BuyerID         *int64                 `json:"buyer_id,omitempty"`
	Buyer           *BuyerDocument         `json:"buyer,omitempty"`
	PaymentMethodID *int64                 `json:"payment_method_id,omitempty"`
	PaymentMethod   *PaymentMethodDocument `json:"payment_method,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type OrderItemDocument struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Units       int             `json:"units"`
}

type BuyerDocument struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type PaymentMethodDocument struct {
	ID             int64  `json:"id"`
	Alias          string `json:"alias"`
	CardTypeID     int    `json:"card_type_id"`
	CardholderName string `json:"cardholder_name"`
	Expiration     string `json:"expiration"`
	CardNumber     string `json:"card_number"`
}

// NewOrderDocument builds the replication payload. Buyer and payment method
// are included once the order has been verified.
func NewOrderDocument(o *Order, buyer *Buyer, pm *PaymentMethod) OrderDocument {
	items := make([]OrderItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDocument{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			Units:       item.Units,
		})
	}

	doc := OrderDocument{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		Address:         o.Address,
		OrderStatusID:   int(o.Status),
		OrderStatus:     o.Status.String(),
		OrderDate:       o.OrderDate,
		Description:     o.Description,
		Total:           o.Total(),
		OrderItems:      items,
		BuyerID:         o.BuyerID,
		PaymentMethodID: o.PaymentMethodID,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}

	if buyer != nil {
		doc.Buyer = &BuyerDocument{ID: buyer.ID, UserID: buyer.UserID, Name: buyer.Name}
	}

	if pm != nil {
		doc.PaymentMethod = &PaymentMethodDocument{
			ID:             pm.ID,
			Alias:          pm.Alias,
			CardTypeID:     pm.CardTypeID,
			CardholderName: pm.CardholderName,
			Expiration:     pm.Expiration,
			CardNumber:     MaskedCardNumber(pm.CardNumber),
		}
	}

	return doc
}
