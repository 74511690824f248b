package resolver

import "github.com/mohammed-shakir/zonegrid/internal/core/model"

type Coverage string

const (
	GreenZone               Coverage = "GREEN_ZONE"
	GreyZone                Coverage = "GREY_ZONE"
	OutsideZonesSupported   Coverage = "OUTSIDE_ZONES_SUPPORTED_GOVERNORATE"
	OutsideZonesUnsupported Coverage = "OUTSIDE_ZONES_UNSUPPORTED_GOVERNORATE"
)

const (
	ReasonGreyZone          = "NON_DELIVERABLE_GREY_ZONE"
	ReasonOutsideGrid       = "NON_DELIVERABLE_OUTSIDE_GRID"
	ReasonUnsupportedRegion = "NON_DELIVERABLE_UNSUPPORTED_GOVERNORATE"
)

const (
	msgGreyZone          = "Delivery is currently paused in this zone."
	msgOutsideGrid       = "This address is outside our delivery zones."
	msgUnsupportedRegion = "We do not deliver to this governorate yet."

	colorGreen = "green"
	colorGrey  = "grey"
)

// Verdict is the resolve response body.
type Verdict struct {
	Warehouse WarehouseSummary `json:"warehouse"`
	Location  Location         `json:"location"`
	Delivery  Delivery         `json:"delivery"`
}

type WarehouseSummary struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Region               string  `json:"region"`
	IsDefault            bool    `json:"isDefault"`
	DefaultShippingPrice float64 `json:"defaultShippingPrice"`
}

type Location struct {
	Source      string      `json:"source"`
	Coordinates model.Point `json:"coordinates"`
	Zone        ZoneSummary `json:"zone"`
	Region      RegionInfo  `json:"region"`
}

// ZoneSummary has every field null when no zone matched.
type ZoneSummary struct {
	ID       *string `json:"id"`
	Color    *string `json:"color"`
	Name     *string `json:"name"`
	AreaName *string `json:"areaName"`
}

type RegionInfo struct {
	Raw         *string `json:"raw"`
	Normalized  *string `json:"normalized"`
	IsSupported bool    `json:"isSupported"`
}

type Delivery struct {
	CanDeliver             bool     `json:"canDeliver"`
	CoverageStatus         Coverage `json:"coverageStatus"`
	ReasonCode             *string  `json:"reasonCode"`
	ReasonMessage          *string  `json:"reasonMessage"`
	EffectiveShippingPrice float64  `json:"effectiveShippingPrice"`
	ShippingFee            *float64 `json:"shippingFee"`
	DefaultShippingPrice   float64  `json:"defaultShippingPrice"`
}

// Options is the listOptions response body.
type Options struct {
	Governorates []Governorate `json:"governorates"`
}

type Governorate struct {
	Code     string `json:"code"`
	Label    string `json:"label"`
	HasAreas bool   `json:"hasAreas"`
	Areas    []Area `json:"areas"`
}

type Area struct {
	Name        string `json:"name"`
	WarehouseID string `json:"warehouseId"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
