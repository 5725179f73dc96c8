package domain

import "time"

// Buyer is keyed by the external user id and created on the user's first order.
type Buyer struct {
	ID             int64
	UserID         string
	Name           string
	PaymentMethods []PaymentMethod

	CreatedAt time.Time
	UpdatedAt time.Time
}

type PaymentMethod struct {
	ID             int64
	BuyerID        int64
	Alias          string
	CardTypeID     int
	CardNumber     string
	CardholderName string
	Expiration     string
	SecurityNumber string
}

func (p PaymentMethod) IsEqualTo(cardTypeID int, cardNumber, expiration string) bool {
	return p.CardTypeID == cardTypeID && p.CardNumber == cardNumber && p.Expiration == expiration
}

// FindPaymentMethod returns the stored method equal to candidate, if any.
func (b *Buyer) FindPaymentMethod(candidate PaymentMethod) (PaymentMethod, bool) {
	for _, pm := range b.PaymentMethods {
		if pm.IsEqualTo(candidate.CardTypeID, candidate.CardNumber, candidate.Expiration) {
			return pm, true
		}
	}
	return PaymentMethod{}, false
}

// MaskedCardNumber keeps only the last four digits.
func MaskedCardNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
