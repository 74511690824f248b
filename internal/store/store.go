// Package store declares the storage capabilities the zone services run on.
//
// Find* methods return (nil, nil) when nothing matches.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/zonegrid/internal/core/model"
)

type WarehouseDirectory interface {
	GetWarehouse(ctx context.Context, id string) (*model.Warehouse, error)
	WarehouseExists(ctx context.Context, id string) (bool, error)
	// earliest-created active warehouse in the region
	FindByRegionActive(ctx context.Context, region string) (*model.Warehouse, error)
	// active default, else earliest-created active warehouse
	FindDefault(ctx context.Context) (*model.Warehouse, error)
}

type ZoneRepository interface {
	// FindContaining returns the zone containing pt, picked with PickContaining.
	// The warehouse is not attached; see Joined.
	FindContaining(ctx context.Context, pt model.Point) (*model.Zone, error)
	FindOverlapping(ctx context.Context, poly orb.Polygon) ([]model.Zone, error)
	FindByID(ctx context.Context, id string) (*model.Zone, error)
	ListByWarehouse(ctx context.Context, warehouseID string) ([]model.Zone, error)
	ListActive(ctx context.Context) ([]model.Zone, error)
	CountByWarehouse(ctx context.Context, warehouseID string) (int, error)
	Insert(ctx context.Context, z model.Zone) error
	InsertMany(ctx context.Context, zs []model.Zone) error
	// BulkPartialUpdate applies each patch atomically to its own document and
	// returns how many documents changed. Missing documents are skipped.
	BulkPartialUpdate(ctx context.Context, patches []model.ZonePatch) (int, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteByWarehouse(ctx context.Context, warehouseID string) (int, error)
}

// ZoneLocator is the containment lookup with the owning warehouse attached.
type ZoneLocator interface {
	FindContaining(ctx context.Context, pt model.Point) (*model.Zone, error)
}

// Joined attaches the owning warehouse to containment results.
type Joined struct {
	Zones      ZoneRepository
	Warehouses WarehouseDirectory
}

var _ ZoneLocator = Joined{}

func (j Joined) FindContaining(ctx context.Context, pt model.Point) (*model.Zone, error) {
	z, err := j.Zones.FindContaining(ctx, pt)
	if err != nil || z == nil {
		return z, err
	}
	if z.WarehouseID == "" {
		return z, nil
	}
	w, err := j.Warehouses.GetWarehouse(ctx, z.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("attach warehouse %s: %w", z.WarehouseID, err)
	}
	if w != nil {
		z.Warehouse = w.Ref()
	}
	return z, nil
}

// PickContaining chooses among zones that all contain the same point. Active
// zones win over inactive ones, then the smallest name, then the smallest id.
// Overlap is refused on manual writes, so more than one candidate normally
// means a point on a shared cell edge.
func PickContaining(zs []model.Zone) (model.Zone, bool) {
	if len(zs) == 0 {
		return model.Zone{}, false
	}
	sorted := append([]model.Zone(nil), zs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Active != b.Active {
			return a.Active
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return sorted[0], true
}

// SortByName orders zones by name, then id.
func SortByName(zs []model.Zone) {
	sort.SliceStable(zs, func(i, j int) bool {
		if zs[i].Name != zs[j].Name {
			return zs[i].Name < zs[j].Name
		}
		return zs[i].ID < zs[j].ID
	})
}

// EarliestActive returns the first active warehouse accepted by keep, by
// creation time ascending.
func EarliestActive(ws []model.Warehouse, keep func(model.Warehouse) bool) *model.Warehouse {
	var best *model.Warehouse
	for i := range ws {
		w := ws[i]
		if !w.Active || (keep != nil && !keep(w)) {
			continue
		}
		if best == nil || w.CreatedAt.Before(best.CreatedAt) ||
			(w.CreatedAt.Equal(best.CreatedAt) && w.ID < best.ID) {
			cp := w
			best = &cp
		}
	}
	return best
}

// DefaultOf applies the default-warehouse rule to ws.
func DefaultOf(ws []model.Warehouse) *model.Warehouse {
	if w := EarliestActive(ws, func(w model.Warehouse) bool { return w.IsDefault }); w != nil {
		return w
	}
	return EarliestActive(ws, nil)
}
