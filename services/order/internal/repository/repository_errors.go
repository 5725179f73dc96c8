package repository

import (
	"fmt"

	"github.com/bsmi021/eahub-shopco/pkg/domain"
)

var (
	ErrOrderNotFound         = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrBuyerNotFound         = fmt.Errorf("buyer %w", domain.ErrNotFound)
	ErrPaymentMethodNotFound = fmt.Errorf("payment method %w", domain.ErrNotFound)
)
