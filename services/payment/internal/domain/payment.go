package domain

import (
	"fmt"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
)

type PaymentStatus string

const (
	PaymentApproved PaymentStatus = "approved"
	PaymentDeclined PaymentStatus = "declined"
	PaymentRefunded PaymentStatus = "refunded"
)

const ReasonDeclined = "card declined"

// Payment is the one charge attempt of an order.
type Payment struct {
	ID            int64
	OrderID       int64
	Status        PaymentStatus
	TransactionID string
	Reason        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewPayment(orderID int64, approved bool, transactionID string, now time.Time) *Payment {
	p := &Payment{
		OrderID:       orderID,
		Status:        PaymentApproved,
		TransactionID: transactionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if !approved {
		p.Status = PaymentDeclined
		p.Reason = ReasonDeclined
	}

	return p
}

// Refund reverses an approved payment. A declined payment has nothing to
// refund and refunding twice is a no-op; both report false.
func (p *Payment) Refund(now time.Time) (bool, error) {
	switch p.Status {
	case PaymentApproved:
		p.Status = PaymentRefunded
		p.UpdatedAt = now
		return true, nil
	case PaymentDeclined, PaymentRefunded:
		return false, nil
	default:
		return false, fmt.Errorf("%w: payment %d has unknown status %q", generalDomain.ErrValidation, p.ID, p.Status)
	}
}
