package domain

import (
	"fmt"
	"time"

	generalDomain "github.com/bsmi021/eahub-shopco/pkg/domain"
)

var siteTypes = map[int]string{
	1: "Distribution Center",
	2: "Store",
	3: "Forward Shipping",
}

func SiteTypeName(typeID int) (string, bool) {
	name, ok := siteTypes[typeID]
	return name, ok
}

type Site struct {
	ID        int64
	Name      string
	ZipCode   string
	TypeID    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SiteInput struct {
	Name    string `json:"name" validate:"required,max=50"`
	ZipCode string `json:"zip_code" validate:"required,max=12"`
	TypeID  int    `json:"type_id" validate:"required,min=1,max=3"`
}

// SiteUpdate changes only the fields that are set.
type SiteUpdate struct {
	Name    *string `json:"name" validate:"omitempty,max=50"`
	ZipCode *string `json:"zip_code" validate:"omitempty,max=12"`
	TypeID  *int    `json:"type_id" validate:"omitempty,min=1,max=3"`
}

func NewSite(in SiteInput, now time.Time) (*Site, error) {
	if _, ok := SiteTypeName(in.TypeID); !ok {
		return nil, fmt.Errorf("%w: unknown site type %d", generalDomain.ErrValidation, in.TypeID)
	}

	return &Site{
		Name:      in.Name,
		ZipCode:   in.ZipCode,
		TypeID:    in.TypeID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Site) Apply(u SiteUpdate, now time.Time) error {
	if u.TypeID != nil {
		if _, ok := SiteTypeName(*u.TypeID); !ok {
			return fmt.Errorf("%w: unknown site type %d", generalDomain.ErrValidation, *u.TypeID)
		}
		s.TypeID = *u.TypeID
	}
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.ZipCode != nil {
		s.ZipCode = *u.ZipCode
	}

	s.UpdatedAt = now
	return nil
}

type SiteDocument struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ZipCode   string    `json:"zip_code"`
	TypeID    int       `json:"type_id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSiteDocument(s *Site) SiteDocument {
	name, _ := SiteTypeName(s.TypeID)

	return SiteDocument{
		ID:        s.ID,
		Name:      s.Name,
		ZipCode:   s.ZipCode,
		TypeID:    s.TypeID,
		Type:      name,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
