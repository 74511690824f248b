package grid

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/core/observability"
	"github.com/mohammed-shakir/zonegrid/internal/geo"
	"github.com/mohammed-shakir/zonegrid/internal/logger"
	"github.com/mohammed-shakir/zonegrid/internal/zoneevents"
)

type Params struct {
	RadiusKm   float64 `json:"radiusKm"`
	CellSideKm float64 `json:"cellSideKm"`
	Overwrite  bool    `json:"overwrite"`
}

func DefaultParams() Params {
	return Params{RadiusKm: DefaultRadiusKm, CellSideKm: DefaultCellSideKm}
}

type GenerateResult struct {
	Total      int          `json:"total"`
	RadiusKm   float64      `json:"radiusKm"`
	CellSideKm float64      `json:"cellSideKm"`
	Data       []model.Zone `json:"data"`
}

// Generate replaces (with Overwrite) or creates the hexagonal grid around a
// warehouse. Calls for the same warehouse are serialized in process and, when
// a lease is configured, across processes.
func (s *Service) Generate(ctx context.Context, warehouseID string, p Params) (*GenerateResult, error) {
	if !positive(p.RadiusKm) || !positive(p.CellSideKm) {
		return nil, apperr.Validation("invalid_grid_params", "radiusKm and cellSideKm must be positive numbers")
	}
	ctx = logger.WithWarehouse(ctx, warehouseID)

	unlock, err := s.locks.lock(ctx, warehouseID)
	if err != nil {
		return nil, apperr.Store("wait for grid lock", err)
	}
	defer unlock()

	if s.lease != nil {
		release, ok, err := s.lease.AcquireGridLease(ctx, warehouseID, s.leaseTTL)
		if err != nil {
			return nil, apperr.Store("acquire grid lease", err)
		}
		if !ok {
			return nil, apperr.Conflict("grid_generation_in_progress", "grid generation already running for warehouse "+warehouseID)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnContext(ctx, "release grid lease", "err", err)
			}
		}()
	}

	w, err := s.warehouses.GetWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, apperr.Store("load warehouse", err)
	}
	if w == nil {
		return nil, apperr.NotFound("warehouse_not_found", "warehouse "+warehouseID+" not found")
	}
	if w.Location == nil {
		return nil, apperr.Validation("warehouse_without_location", "warehouse "+warehouseID+" has no location")
	}

	existing, err := s.zones.CountByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, apperr.Store("count zones", err)
	}
	if existing > 0 && !p.Overwrite {
		return nil, apperr.Conflict("grid_exists",
			fmt.Sprintf("warehouse %s already has %d zones; pass overwrite to replace them", warehouseID, existing))
	}

	center := orb.Point{w.Location.Lng, w.Location.Lat}
	cells, err := geo.HexGrid(geo.BoundAround(center, p.RadiusKm), p.CellSideKm, s.maxCells)
	if errors.Is(err, geo.ErrTooManyCells) {
		return nil, apperr.Validation("grid_too_large", err.Error())
	}
	if err != nil {
		return nil, apperr.Validation("invalid_grid_params", err.Error())
	}
	if len(cells) == 0 {
		return nil, apperr.Validation("grid_empty",
			fmt.Sprintf("no %.3g km cells fit in a %.3g km radius", p.CellSideKm, p.RadiusKm))
	}

	if existing > 0 {
		n, err := s.zones.DeleteByWarehouse(ctx, warehouseID)
		if err != nil {
			return nil, apperr.Store("delete previous grid", err)
		}
		s.logger.InfoContext(ctx, "grid overwritten", "deleted", n)
	}

	prefix := w.Code
	if prefix == "" {
		prefix = "WH"
	}
	now := s.now()
	zs := make([]model.Zone, len(cells))
	ids := make([]string, len(cells))
	for i, c := range cells {
		zs[i] = model.Zone{
			ID:          s.newID(),
			Name:        fmt.Sprintf("%s-cell-%d", prefix, i+1),
			Country:     model.DefaultCountry,
			Region:      w.Region,
			Geometry:    model.NewGeometry(c),
			WarehouseID: w.ID,
			Active:      false,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		ids[i] = zs[i].ID
	}
	if err := s.zones.InsertMany(ctx, zs); err != nil {
		return nil, apperr.Store("insert grid", err)
	}

	observability.AddGridCells(len(zs))
	s.events.Publish(zoneevents.Event{Op: zoneevents.GridGenerated, WarehouseID: w.ID, ZoneIDs: ids, Count: len(ids)})
	s.logger.InfoContext(ctx, "grid generated",
		"cells", len(zs), "radius_km", p.RadiusKm, "cell_side_km", p.CellSideKm)

	return &GenerateResult{Total: len(zs), RadiusKm: p.RadiusKm, CellSideKm: p.CellSideKm, Data: zs}, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
