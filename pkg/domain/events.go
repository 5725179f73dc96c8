package domain

import "github.com/shopspring/decimal"

type Address struct {
	Street1 string `json:"street_1" validate:"required"`
	Street2 string `json:"street_2,omitempty"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code" validate:"required"`
	Country string `json:"country" validate:"required"`
}

type CardDetails struct {
	CardNumber     string `json:"card_number" validate:"required"`
	CardholderName string `json:"cardholder_name" validate:"required"`
	Expiration     string `json:"expiration" validate:"required"`
	SecurityNumber string `json:"security_number"`
	CardTypeID     int    `json:"card_type_id" validate:"required,gt=0"`
}

type BasketItem struct {
	ID           string          `json:"id,omitempty"`
	ProductID    int64           `json:"product_id" validate:"required,gt=0"`
	ProductName  string          `json:"product_name" validate:"required"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	OldUnitPrice decimal.Decimal `json:"old_unit_price"`
	Quantity     int             `json:"quantity" validate:"gt=0"`
}

type Basket struct {
	BuyerID string       `json:"buyer_id" validate:"required"`
	Items   []BasketItem `json:"items" validate:"required,min=1,dive"`
}

// UserCheckoutAccepted carries the basket snapshot the order is built from.
type UserCheckoutAccepted struct {
	UserID   string `json:"user_id" validate:"required"`
	UserName string `json:"user_name" validate:"required"`
	Address
	CardDetails
	Basket Basket `json:"basket"`
}

type OrderRef struct {
	ID       int64 `json:"id" validate:"required"`
	StatusID int   `json:"order_status_id"`
}

type OrderStarted struct {
	UserID   string `json:"user_id" validate:"required"`
	UserName string `json:"user_name" validate:"required"`
	CardDetails
	Order OrderRef `json:"order"`
}

type BuyerPaymentVerified struct {
	BuyerID   int64 `json:"buyer_id" validate:"required"`
	PaymentID int64 `json:"payment_id" validate:"required"`
	OrderID   int64 `json:"order_id" validate:"required"`
}

type OrderSubmitted struct {
	OrderID       int64  `json:"order_id" validate:"required"`
	OrderStatusID int    `json:"order_status_id,omitempty"`
	BuyerName     string `json:"buyer_name,omitempty"`
}

type OrderStockItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Units     int   `json:"units" validate:"gt=0"`
}

type OrderAwaitingValidation struct {
	OrderID         int64            `json:"order_id" validate:"required"`
	OrderStockItems []OrderStockItem `json:"order_stock_items" validate:"required,min=1,dive"`
}

// OrderStatusChanged is the payload of status events that carry nothing but the order.
type OrderStatusChanged struct {
	OrderID int64 `json:"order_id" validate:"required"`
}

type OrderPaid struct {
	OrderID         int64            `json:"order_id" validate:"required"`
	OrderStockItems []OrderStockItem `json:"order_stock_items" validate:"required,min=1,dive"`
}

type OrderCancelled struct {
	OrderID     int64  `json:"order_id" validate:"required"`
	Description string `json:"description"`
}

type ShipOrder struct {
	OrderID int64 `json:"order_id" validate:"required"`
}

type ConfirmedOrderStock struct {
	OrderID int64 `json:"order_id" validate:"required"`
}

type StockCheckItem struct {
	ProductID int64 `json:"product_id" validate:"required"`
	HasStock  bool  `json:"has_stock"`
}

type RejectedOrderStock struct {
	OrderID         int64            `json:"order_id" validate:"required"`
	OrderStockItems []StockCheckItem `json:"order_stock_items" validate:"required,min=1,dive"`
}

type DebitedStockItem struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Removed   int   `json:"removed"`
}

type OrderStockDebited struct {
	OrderID int64              `json:"order_id" validate:"required"`
	Items   []DebitedStockItem `json:"items"`
}

type PaymentSucceeded struct {
	OrderID       int64  `json:"order_id" validate:"required"`
	TransactionID string `json:"transaction_id"`
}

type PaymentFailed struct {
	OrderID       int64  `json:"order_id" validate:"required"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason,omitempty"`
}

type ProductAdded struct {
	ProductID int64 `json:"product_id" validate:"required"`
}
