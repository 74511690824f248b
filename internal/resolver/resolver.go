// Package resolver turns a coordinate and an optional free-text region into a
// delivery verdict: which warehouse serves the point, whether it is inside an
// active zone, and what shipping price applies.
package resolver

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/core/observability"
	"github.com/mohammed-shakir/zonegrid/internal/geo"
	"github.com/mohammed-shakir/zonegrid/internal/region"
	"github.com/mohammed-shakir/zonegrid/internal/store"
)

const DefaultSource = "gps"

type Request struct {
	Lat    float64
	Lng    float64
	Region string
	Source string
}

// ParseRequest builds a Request from untyped transport values.
func ParseRequest(lat, lng, regionRaw, source string) (Request, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return Request{}, apperr.Validation("invalid_coordinates", "lat must be a number")
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return Request{}, apperr.Validation("invalid_coordinates", "lng must be a number")
	}
	return Request{Lat: la, Lng: ln, Region: regionRaw, Source: source}, nil
}

// ActiveZoneLister is the read the option picker needs.
type ActiveZoneLister interface {
	ListActive(ctx context.Context) ([]model.Zone, error)
}

type Resolver struct {
	zones      store.ZoneLocator
	active     ActiveZoneLister
	warehouses store.WarehouseDirectory
	logger     *slog.Logger
}

func New(zones store.ZoneLocator, active ActiveZoneLister, warehouses store.WarehouseDirectory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{zones: zones, active: active, warehouses: warehouses, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (*Verdict, error) {
	if !geo.ValidCoordinate(req.Lat, req.Lng) {
		return nil, apperr.Validation("invalid_coordinates", "lat must be within [-90,90] and lng within [-180,180]")
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = DefaultSource
	}
	client, _ := region.Normalize(req.Region)

	z, err := r.zones.FindContaining(ctx, model.Point{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		return nil, apperr.Store("find containing zone", err)
	}

	var v *Verdict
	if z != nil {
		v, err = r.inZone(z, client)
	} else {
		v, err = r.outsideZones(ctx, client)
	}
	if err != nil {
		if apperr.KindOf(err) == apperr.KindConfiguration {
			r.logger.ErrorContext(ctx, "resolve misconfigured",
				"lat", req.Lat, "lng", req.Lng, "region", req.Region, "err", err)
		}
		return nil, err
	}

	v.Location.Source = source
	v.Location.Coordinates = model.Point{Lat: req.Lat, Lng: req.Lng}
	v.Location.Region.Raw = strPtr(strings.TrimSpace(req.Region))

	observability.IncResolution(string(v.Delivery.CoverageStatus))
	r.logger.DebugContext(ctx, "resolved location",
		"coverage", v.Delivery.CoverageStatus,
		"warehouse", v.Warehouse.ID,
		"zone", deref(v.Location.Zone.ID))
	return v, nil
}

func (r *Resolver) inZone(z *model.Zone, client region.Code) (*Verdict, error) {
	w := z.Warehouse
	if w == nil {
		return nil, apperr.Configuration("zone_without_warehouse", "zone "+z.ID+" has no linked warehouse")
	}

	normalized := client
	if normalized == "" {
		normalized = region.Code(w.Region)
	}

	v := &Verdict{
		Warehouse: WarehouseSummary{
			ID:                   w.ID,
			Name:                 w.Name,
			Region:               w.Region,
			IsDefault:            w.IsDefault,
			DefaultShippingPrice: w.DefaultShippingPrice,
		},
		Location: Location{
			Zone: ZoneSummary{
				ID:       strPtr(z.ID),
				Name:     strPtr(z.Name),
				AreaName: strPtr(z.AreaName),
			},
			Region: RegionInfo{
				Normalized:  strPtr(string(normalized)),
				IsSupported: region.IsSupported(normalized),
			},
		},
		Delivery: Delivery{
			ShippingFee:            validFee(z.ShippingFee),
			DefaultShippingPrice:   w.DefaultShippingPrice,
			EffectiveShippingPrice: effectivePrice(z.ShippingFee, w.DefaultShippingPrice),
		},
	}
	if z.Active {
		v.Location.Zone.Color = strPtr(colorGreen)
		v.Delivery.CanDeliver = true
		v.Delivery.CoverageStatus = GreenZone
	} else {
		v.Location.Zone.Color = strPtr(colorGrey)
		v.Delivery.CoverageStatus = GreyZone
		v.Delivery.ReasonCode = strPtr(ReasonGreyZone)
		v.Delivery.ReasonMessage = strPtr(msgGreyZone)
	}
	return v, nil
}

func (r *Resolver) outsideZones(ctx context.Context, client region.Code) (*Verdict, error) {
	var (
		w   *model.Warehouse
		err error
	)
	supported := region.IsSupported(client)
	if supported {
		w, err = r.warehouses.FindByRegionActive(ctx, string(client))
		if err != nil {
			return nil, apperr.Store("find regional warehouse", err)
		}
	}
	if w == nil {
		w, err = r.warehouses.FindDefault(ctx)
		if err != nil {
			return nil, apperr.Store("find default warehouse", err)
		}
	}
	if w == nil {
		return nil, apperr.Configuration("no_active_warehouse", "no active warehouse is configured")
	}

	v := &Verdict{
		Warehouse: WarehouseSummary{
			ID:                   w.ID,
			Name:                 w.Name,
			Region:               w.Region,
			IsDefault:            w.IsDefault,
			DefaultShippingPrice: w.DefaultShippingPrice,
		},
		Delivery: Delivery{
			DefaultShippingPrice:   w.DefaultShippingPrice,
			EffectiveShippingPrice: effectivePrice(nil, w.DefaultShippingPrice),
		},
	}

	if supported {
		v.Location.Region = RegionInfo{Normalized: strPtr(string(client)), IsSupported: true}
		v.Delivery.CoverageStatus = OutsideZonesSupported
		v.Delivery.ReasonCode = strPtr(ReasonOutsideGrid)
		v.Delivery.ReasonMessage = strPtr(msgOutsideGrid)
		return v, nil
	}

	normalized := client
	if normalized == "" {
		normalized = region.Code(w.Region)
	}
	v.Location.Region = RegionInfo{
		Normalized:  strPtr(string(normalized)),
		IsSupported: region.IsSupported(client) || region.IsSupported(region.Code(w.Region)),
	}
	v.Delivery.CoverageStatus = OutsideZonesUnsupported
	v.Delivery.ReasonCode = strPtr(ReasonUnsupportedRegion)
	v.Delivery.ReasonMessage = strPtr(msgUnsupportedRegion)
	return v, nil
}

// ListOptions groups the area names of active zones under each supported region.
func (r *Resolver) ListOptions(ctx context.Context) (*Options, error) {
	zs, err := r.active.ListActive(ctx)
	if err != nil {
		return nil, apperr.Store("list active zones", err)
	}

	byRegion := make(map[region.Code]map[Area]struct{})
	for _, z := range zs {
		name := strings.TrimSpace(z.AreaName)
		if name == "" {
			continue
		}
		code := zoneRegion(z.Region)
		if code == "" {
			continue
		}
		set := byRegion[code]
		if set == nil {
			set = make(map[Area]struct{})
			byRegion[code] = set
		}
		set[Area{Name: name, WarehouseID: z.WarehouseID}] = struct{}{}
	}

	out := &Options{Governorates: make([]Governorate, 0, len(region.Supported()))}
	for _, code := range region.Supported() {
		areas := make([]Area, 0, len(byRegion[code]))
		for a := range byRegion[code] {
			areas = append(areas, a)
		}
		sort.Slice(areas, func(i, j int) bool {
			if areas[i].Name != areas[j].Name {
				return areas[i].Name < areas[j].Name
			}
			return areas[i].WarehouseID < areas[j].WarehouseID
		})
		out.Governorates = append(out.Governorates, Governorate{
			Code:     string(code),
			Label:    region.Label(code),
			HasAreas: len(areas) > 0,
			Areas:    areas,
		})
	}
	return out, nil
}

// zoneRegion accepts either a stored region code or free text.
func zoneRegion(s string) region.Code {
	if c := region.Code(strings.ToUpper(strings.TrimSpace(s))); region.Known(c) {
		return c
	}
	c, _ := region.Normalize(s)
	return c
}

func validFee(fee *float64) *float64 {
	if fee == nil || math.IsNaN(*fee) || math.IsInf(*fee, 0) || *fee < 0 {
		return nil
	}
	v := *fee
	return &v
}

func effectivePrice(fee *float64, warehouseDefault float64) float64 {
	if f := validFee(fee); f != nil {
		return *f
	}
	if math.IsNaN(warehouseDefault) || math.IsInf(warehouseDefault, 0) || warehouseDefault < 0 {
		return 0
	}
	return warehouseDefault
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
