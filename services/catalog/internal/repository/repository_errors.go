package repository

import (
	"fmt"

	"github.com/bsmi021/eahub-shopco/pkg/domain"
)

var (
	ErrProductNotFound = fmt.Errorf("product %w", domain.ErrNotFound)
	// ErrProductExists maps to a conflict: names are unique in the catalog.
	ErrProductExists = fmt.Errorf("%w: product name already taken", domain.ErrInvalidTransition)
)
