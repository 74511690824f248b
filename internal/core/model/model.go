// Package model defines core domain types shared across the service.
package model

import (
	"time"
)

const DefaultCountry = "Egypt"

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Warehouse struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Code                 string    `json:"code"`
	Region               string    `json:"region"`
	Active               bool      `json:"active"`
	IsDefault            bool      `json:"isDefault"`
	Location             *Point    `json:"location,omitempty"`
	DefaultShippingPrice float64   `json:"defaultShippingPrice"`
	Boundary             *Geometry `json:"boundary,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

// WarehouseRef is the warehouse projection attached to a zone on containment lookups.
type WarehouseRef struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Code                 string  `json:"code"`
	Region               string  `json:"region"`
	Active               bool    `json:"active"`
	IsDefault            bool    `json:"isDefault"`
	DefaultShippingPrice float64 `json:"defaultShippingPrice"`
}

func (w Warehouse) Ref() *WarehouseRef {
	return &WarehouseRef{
		ID:                   w.ID,
		Name:                 w.Name,
		Code:                 w.Code,
		Region:               w.Region,
		Active:               w.Active,
		IsDefault:            w.IsDefault,
		DefaultShippingPrice: w.DefaultShippingPrice,
	}
}

type Zone struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	AreaName    string        `json:"areaName,omitempty"`
	Country     string        `json:"country"`
	Region      string        `json:"region,omitempty"`
	Geometry    Geometry      `json:"geometry"`
	WarehouseID string        `json:"warehouse"`
	ShippingFee *float64      `json:"shippingFee,omitempty"`
	Active      bool          `json:"active"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	Warehouse   *WarehouseRef `json:"-"`
}

// Version changes whenever the stored document changes.
func (z Zone) Version() int64 { return z.UpdatedAt.UnixNano() }

// ZonePatch is a per-document field delta. Nil pointers leave the field
// untouched; the Unset flags remove the field.
type ZonePatch struct {
	ZoneID           string
	Name             *string
	Active           *bool
	ShippingFee      *float64
	UnsetShippingFee bool
	AreaName         *string
	UnsetAreaName    bool
	Geometry         *Geometry
	WarehouseID      *string
	Region           *string
}

func (p ZonePatch) Empty() bool {
	return p.Name == nil && p.Active == nil && p.ShippingFee == nil && !p.UnsetShippingFee &&
		p.AreaName == nil && !p.UnsetAreaName && p.Geometry == nil && p.WarehouseID == nil && p.Region == nil
}

// Apply copies the delta onto z and stamps UpdatedAt.
func (p ZonePatch) Apply(z *Zone, now time.Time) {
	if p.Name != nil {
		z.Name = *p.Name
	}
	if p.Active != nil {
		z.Active = *p.Active
	}
	if p.UnsetShippingFee {
		z.ShippingFee = nil
	} else if p.ShippingFee != nil {
		v := *p.ShippingFee
		z.ShippingFee = &v
	}
	if p.UnsetAreaName {
		z.AreaName = ""
	} else if p.AreaName != nil {
		z.AreaName = *p.AreaName
	}
	if p.Geometry != nil {
		z.Geometry = *p.Geometry
	}
	if p.WarehouseID != nil {
		z.WarehouseID = *p.WarehouseID
	}
	if p.Region != nil {
		z.Region = *p.Region
	}
	z.UpdatedAt = now
}
