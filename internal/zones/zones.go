// Package zones is manual zone management: create, update, toggle and delete
// single zones while keeping them valid and non-overlapping.
package zones

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/geo"
	"github.com/mohammed-shakir/zonegrid/internal/store"
	"github.com/mohammed-shakir/zonegrid/internal/zoneevents"
)

type Input struct {
	Name        string          `json:"name"`
	AreaName    string          `json:"areaName"`
	Country     string          `json:"country"`
	Geometry    *model.Geometry `json:"geometry"`
	WarehouseID string          `json:"warehouse"`
	ShippingFee *float64        `json:"shippingFee"`
	Active      *bool           `json:"active"`
}

// Patch changes the fields that are set. A shippingFee or areaName sent as
// null (or "") removes the field.
type Patch struct {
	Name             *string
	AreaName         *string
	UnsetAreaName    bool
	Geometry         *model.Geometry
	WarehouseID      *string
	ShippingFee      *float64
	UnsetShippingFee bool
	Active           *bool
}

func (p *Patch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Patch{}
	field := func(key string, dst any) error {
		v, ok := raw[key]
		if !ok || isNull(v) {
			return nil
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	}
	if err := field("name", &p.Name); err != nil {
		return err
	}
	if err := field("geometry", &p.Geometry); err != nil {
		return err
	}
	if err := field("warehouse", &p.WarehouseID); err != nil {
		return err
	}
	if err := field("active", &p.Active); err != nil {
		return err
	}
	if v, ok := raw["areaName"]; ok {
		if err := field("areaName", &p.AreaName); err != nil {
			return err
		}
		if isNull(v) || (p.AreaName != nil && strings.TrimSpace(*p.AreaName) == "") {
			p.AreaName, p.UnsetAreaName = nil, true
		}
	}
	if v, ok := raw["shippingFee"]; ok {
		if isNull(v) || bytes.Equal(bytes.TrimSpace(v), []byte(`""`)) {
			p.UnsetShippingFee = true
		} else if err := field("shippingFee", &p.ShippingFee); err != nil {
			return err
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

type Service struct {
	zones      store.ZoneRepository
	warehouses store.WarehouseDirectory
	events     zoneevents.Emitter
	logger     *slog.Logger
	now        func() time.Time

	// serializes geometry writes so two overlapping creates cannot both pass the check
	writeMu sync.Mutex
}

func New(zones store.ZoneRepository, warehouses store.WarehouseDirectory, events zoneevents.Emitter, logger *slog.Logger) *Service {
	if events == nil {
		events = zoneevents.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{zones: zones, warehouses: warehouses, events: events, logger: logger, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id string) (*model.Zone, error) {
	z, err := s.zones.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Store("load zone", err)
	}
	if z == nil {
		return nil, apperr.NotFound("zone_not_found", "zone "+id+" not found")
	}
	return z, nil
}

func (s *Service) Create(ctx context.Context, in Input) (*model.Zone, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name_required", "zone name is required")
	}
	if in.Geometry == nil {
		return nil, apperr.Validation("invalid_geometry", "geometry is required")
	}
	if err := validateGeometry(*in.Geometry); err != nil {
		return nil, err
	}
	if err := validateFee(in.ShippingFee); err != nil {
		return nil, err
	}
	w, err := s.warehouse(ctx, in.WarehouseID)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.refuseOverlap(ctx, "", *in.Geometry); err != nil {
		return nil, err
	}

	now := s.now()
	z := model.Zone{
		ID:          uuid.NewString(),
		Name:        name,
		AreaName:    strings.ToLower(strings.TrimSpace(in.AreaName)),
		Country:     strings.TrimSpace(in.Country),
		Region:      w.Region,
		Geometry:    *in.Geometry,
		WarehouseID: w.ID,
		ShippingFee: in.ShippingFee,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if z.Country == "" {
		z.Country = model.DefaultCountry
	}
	if in.Active != nil {
		z.Active = *in.Active
	}
	if err := s.zones.Insert(ctx, z); err != nil {
		return nil, apperr.Store("insert zone", err)
	}

	s.events.Publish(zoneevents.Event{Op: zoneevents.ZoneCreated, WarehouseID: z.WarehouseID, ZoneIDs: []string{z.ID}, Count: 1})
	s.logger.InfoContext(ctx, "zone created", "zone", z.ID, "warehouse", z.WarehouseID, "name", z.Name)
	return &z, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (*model.Zone, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	zp := model.ZonePatch{
		ZoneID:           id,
		Active:           p.Active,
		ShippingFee:      p.ShippingFee,
		UnsetShippingFee: p.UnsetShippingFee,
		UnsetAreaName:    p.UnsetAreaName,
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, apperr.Validation("name_required", "zone name cannot be empty")
		}
		zp.Name = &name
	}
	if p.AreaName != nil {
		area := strings.ToLower(strings.TrimSpace(*p.AreaName))
		zp.AreaName = &area
	}
	if err := validateFee(p.ShippingFee); err != nil {
		return nil, err
	}
	if p.Geometry != nil {
		if err := validateGeometry(*p.Geometry); err != nil {
			return nil, err
		}
		zp.Geometry = p.Geometry
	}
	if p.WarehouseID != nil && *p.WarehouseID != cur.WarehouseID {
		w, err := s.warehouse(ctx, *p.WarehouseID)
		if err != nil {
			return nil, err
		}
		zp.WarehouseID = &w.ID
		zp.Region = &w.Region
	}
	if zp.Empty() {
		return cur, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if zp.Geometry != nil {
		if err := s.refuseOverlap(ctx, id, *zp.Geometry); err != nil {
			return nil, err
		}
	}
	n, err := s.zones.BulkPartialUpdate(ctx, []model.ZonePatch{zp})
	if err != nil {
		return nil, apperr.Store("update zone", err)
	}
	if n == 0 {
		return nil, apperr.NotFound("zone_not_found", "zone "+id+" not found")
	}

	z, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Publish(zoneevents.Event{Op: zoneevents.ZoneUpdated, WarehouseID: z.WarehouseID, ZoneIDs: []string{id}, Count: 1})
	return z, nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (*model.Zone, error) {
	return s.Update(ctx, id, Patch{Active: &active})
}

// Delete removes a zone. Orders referencing it are not checked.
func (s *Service) Delete(ctx context.Context, id string) error {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.zones.Delete(ctx, id)
	if err != nil {
		return apperr.Store("delete zone", err)
	}
	if !ok {
		return apperr.NotFound("zone_not_found", "zone "+id+" not found")
	}
	s.events.Publish(zoneevents.Event{Op: zoneevents.ZoneDeleted, WarehouseID: cur.WarehouseID, ZoneIDs: []string{id}, Count: 1})
	s.logger.InfoContext(ctx, "zone deleted", "warehouse", cur.WarehouseID)
	return nil
}

func (s *Service) warehouse(ctx context.Context, id string) (*model.Warehouse, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("warehouse_required", "warehouse is required")
	}
	w, err := s.warehouses.GetWarehouse(ctx, id)
	if err != nil {
		return nil, apperr.Store("load warehouse", err)
	}
	if w == nil {
		return nil, apperr.NotFound("warehouse_not_found", "warehouse "+id+" not found")
	}
	return w, nil
}

func (s *Service) refuseOverlap(ctx context.Context, self string, g model.Geometry) error {
	hits, err := s.zones.FindOverlapping(ctx, g.Polygon)
	if err != nil {
		return apperr.Store("check overlap", err)
	}
	var names []string
	for _, z := range hits {
		if z.ID != self {
			names = append(names, z.Name)
		}
	}
	if len(names) > 0 {
		return apperr.Conflict("zone_overlap", "zone overlaps "+strings.Join(names, ", "))
	}
	return nil
}

func validateGeometry(g model.Geometry) error {
	if err := geo.ValidatePolygon(g.Polygon); err != nil {
		return &apperr.Error{Kind: apperr.KindValidation, Code: "invalid_geometry", Msg: "invalid geometry", Err: err}
	}
	return nil
}

func validateFee(fee *float64) error {
	if fee == nil {
		return nil
	}
	if math.IsNaN(*fee) || math.IsInf(*fee, 0) || *fee < 0 {
		return apperr.Validation("invalid_shipping_fee", "shippingFee must be a finite non-negative number")
	}
	return nil
}
