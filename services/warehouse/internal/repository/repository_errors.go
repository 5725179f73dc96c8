package repository

import (
	"errors"
	"fmt"

	"github.com/bsmi021/eahub-shopco/pkg/domain"
)

var (
	ErrInventoryNotFound = fmt.Errorf("inventory item %w", domain.ErrNotFound)
	ErrSiteNotFound      = fmt.Errorf("site %w", domain.ErrNotFound)

	// ErrVersionConflict means another writer inserted the same version first.
	ErrVersionConflict = errors.New("inventory version conflict")
)
