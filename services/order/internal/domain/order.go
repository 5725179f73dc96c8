package domain

import (
	"fmt"
	"strings"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
	"github.com/shopspring/decimal"
)

type OrderStatus int

const (
	OrderStatusSubmitted          OrderStatus = 1
	OrderStatusAwaitingValidation OrderStatus = 2
	OrderStatusStockConfirmed     OrderStatus = 3
	OrderStatusPaid               OrderStatus = 4
	OrderStatusShipped            OrderStatus = 5
	OrderStatusCancelled          OrderStatus = 6
)

var statusNames = map[OrderStatus]string{
	OrderStatusSubmitted:          "submitted",
	OrderStatusAwaitingValidation: "awaiting_validation",
	OrderStatusStockConfirmed:     "stock_confirmed",
	OrderStatusPaid:               "paid",
	OrderStatusShipped:            "shipped",
	OrderStatusCancelled:          "cancelled",
}

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusSubmitted:          {OrderStatusAwaitingValidation, OrderStatusCancelled},
	OrderStatusAwaitingValidation: {OrderStatusStockConfirmed, OrderStatusCancelled},
	OrderStatusStockConfirmed:     {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:               {OrderStatusShipped},
}

func (s OrderStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

func (s OrderStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsStale reports whether an event driving the order to target arrived after
// the order already moved beyond it.
func IsStale(current, target OrderStatus) bool {
	if current == OrderStatusCancelled {
		return target != OrderStatusCancelled
	}
	return target != OrderStatusCancelled && current > target
}

type Order struct {
	ID              int64
	CustomerID      string
	Address         generalDomain.Address
	BuyerID         *int64
	PaymentMethodID *int64
	Status          OrderStatus
	OrderDate       time.Time
	Description     string
	Items           []OrderItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	Units       int
}

// NewOrder builds a submitted order from a checkout snapshot.
func NewOrder(event generalDomain.UserCheckoutAccepted, now time.Time) *Order {
	items := make([]OrderItem, 0, len(event.Basket.Items))
	for _, item := range event.Basket.Items {
		items = append(items, OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Discount:    decimal.Zero,
			Units:       item.Quantity,
		})
	}

	return &Order{
		CustomerID: event.UserID,
		Address:    event.Address,
		Status:     OrderStatusSubmitted,
		OrderDate:  now,
		Items:      items,
	}
}

func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Sub(item.Discount).Mul(decimal.NewFromInt(int64(item.Units))))
	}
	return total
}

func (o *Order) StockItems() []generalDomain.OrderStockItem {
	items := make([]generalDomain.OrderStockItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, generalDomain.OrderStockItem{ProductID: item.ProductID, Units: item.Units})
	}
	return items
}

func (o *Order) IsCancellable() bool {
	return CanTransition(o.Status, OrderStatusCancelled)
}

// transition moves the order to next. It reports false without error when the
// order is already there.
func (o *Order) transition(next OrderStatus) (bool, error) {
	if o.Status == next {
		return false, nil
	}

	if !CanTransition(o.Status, next) {
		return false, fmt.Errorf("order %d from %s to %s: %w", o.ID, o.Status, next, generalDomain.ErrInvalidTransition)
	}

	o.Status = next
	return true, nil
}

func (o *Order) SetAwaitingValidation(buyerID, paymentMethodID int64) (bool, error) {
	changed, err := o.transition(OrderStatusAwaitingValidation)
	if err != nil || !changed {
		return changed, err
	}

	o.BuyerID = &buyerID
	o.PaymentMethodID = &paymentMethodID
	return true, nil
}

func (o *Order) SetStockConfirmed() (bool, error) {
	return o.transition(OrderStatusStockConfirmed)
}

func (o *Order) SetPaid() (bool, error) {
	return o.transition(OrderStatusPaid)
}

// SetShipped requires a Paid order. Shipping twice is an invalid transition.
func (o *Order) SetShipped() (bool, error) {
	if o.Status != OrderStatusPaid {
		return false, fmt.Errorf("ship order %d in %s: %w", o.ID, o.Status, generalDomain.ErrInvalidTransition)
	}

	return o.transition(OrderStatusShipped)
}

func (o *Order) SetCancelled(description string) (bool, error) {
	changed, err := o.transition(OrderStatusCancelled)
	if err != nil || !changed {
		return changed, err
	}

	o.Description = description
	return true, nil
}

// SetCancelledWhenStockRejected cancels the order and names only the rejected
// products in the description.
func (o *Order) SetCancelledWhenStockRejected(rejected []int64) (bool, error) {
	reject := make(map[int64]bool, len(rejected))
	for _, id := range rejected {
		reject[id] = true
	}

	var names []string
	for _, item := range o.Items {
		if reject[item.ProductID] {
			names = append(names, item.ProductName)
		}
	}

	return o.SetCancelled(fmt.Sprintf("The product items do not have stock: (%s)", strings.Join(names, ", ")))
}
