package repository

import (
	"errors"
	"fmt"

	"github.com/bsmi021/eahub-shopco/pkg/domain"
)

var (
	ErrPaymentNotFound = fmt.Errorf("payment %w", domain.ErrNotFound)

	// ErrPaymentExists means a concurrent delivery already charged the order.
	ErrPaymentExists = errors.New("payment already exists")
)
