// Package memstore keeps warehouses and zones in process memory. It backs
// tests and single-node deployments seeded from a file.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/geo"
	"github.com/mohammed-shakir/zonegrid/internal/spatial"
	"github.com/mohammed-shakir/zonegrid/internal/store"
)

type Store struct {
	now func() time.Time

	mu         sync.RWMutex
	warehouses map[string]model.Warehouse
	zones      map[string]model.Zone
	idx        *spatial.H3Index
}

var (
	_ store.WarehouseDirectory = (*Store)(nil)
	_ store.ZoneRepository     = (*Store)(nil)
)

func New(res int) (*Store, error) {
	idx, err := spatial.NewH3Index(res)
	if err != nil {
		return nil, fmt.Errorf("memstore index: %w", err)
	}
	return &Store{
		now:        time.Now,
		warehouses: make(map[string]model.Warehouse),
		zones:      make(map[string]model.Zone),
		idx:        idx,
	}, nil
}

// PutWarehouse inserts or replaces a warehouse record.
func (s *Store) PutWarehouse(_ context.Context, w model.Warehouse) error {
	if w.ID == "" {
		return fmt.Errorf("warehouse id is required")
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.warehouses[w.ID] = w
	s.mu.Unlock()
	return nil
}

func (s *Store) GetWarehouse(ctx context.Context, id string) (*model.Warehouse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.warehouses[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *Store) WarehouseExists(ctx context.Context, id string) (bool, error) {
	w, err := s.GetWarehouse(ctx, id)
	return w != nil, err
}

func (s *Store) FindByRegionActive(ctx context.Context, region string) (*model.Warehouse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return store.EarliestActive(s.warehouseList(), func(w model.Warehouse) bool { return w.Region == region }), nil
}

func (s *Store) FindDefault(ctx context.Context) (*model.Warehouse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return store.DefaultOf(s.warehouseList()), nil
}

func (s *Store) warehouseList() []model.Warehouse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Warehouse, 0, len(s.warehouses))
	for _, w := range s.warehouses {
		out = append(out, w)
	}
	return out
}

func (s *Store) FindContaining(ctx context.Context, pt model.Point) (*model.Zone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := s.idx.QueryContaining(orb.Point{pt.Lng, pt.Lat})
	if err != nil {
		return nil, fmt.Errorf("memstore containment: %w", err)
	}
	s.mu.RLock()
	zs := make([]model.Zone, 0, len(ids))
	for _, id := range ids {
		if z, ok := s.zones[id]; ok {
			zs = append(zs, z)
		}
	}
	s.mu.RUnlock()
	z, ok := store.PickContaining(zs)
	if !ok {
		return nil, nil
	}
	return &z, nil
}

func (s *Store) FindOverlapping(ctx context.Context, poly orb.Polygon) ([]model.Zone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Zone
	for _, z := range s.zones {
		if geo.Overlaps(z.Geometry.Polygon, poly) {
			out = append(out, z)
		}
	}
	store.SortByName(out)
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*model.Zone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zones[id]
	if !ok {
		return nil, nil
	}
	return &z, nil
}

func (s *Store) ListByWarehouse(ctx context.Context, warehouseID string) ([]model.Zone, error) {
	return s.list(ctx, func(z model.Zone) bool { return z.WarehouseID == warehouseID })
}

func (s *Store) ListActive(ctx context.Context) ([]model.Zone, error) {
	return s.list(ctx, func(z model.Zone) bool { return z.Active })
}

func (s *Store) list(ctx context.Context, keep func(model.Zone) bool) ([]model.Zone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.Zone, 0)
	for _, z := range s.zones {
		if keep(z) {
			out = append(out, z)
		}
	}
	s.mu.RUnlock()
	store.SortByName(out)
	return out, nil
}

func (s *Store) CountByWarehouse(ctx context.Context, warehouseID string) (int, error) {
	zs, err := s.ListByWarehouse(ctx, warehouseID)
	return len(zs), err
}

func (s *Store) Insert(ctx context.Context, z model.Zone) error {
	return s.InsertMany(ctx, []model.Zone{z})
}

// InsertMany indexes every zone first so a bad geometry leaves the store untouched.
func (s *Store) InsertMany(ctx context.Context, zs []model.Zone) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, z := range zs {
		if z.ID == "" {
			return fmt.Errorf("zone id is required")
		}
		if _, dup := s.zones[z.ID]; dup {
			return fmt.Errorf("zone %s already exists", z.ID)
		}
	}
	done := make([]string, 0, len(zs))
	for _, z := range zs {
		if err := s.idx.Insert(z.ID, z.Geometry.Polygon); err != nil {
			for _, id := range done {
				s.idx.Remove(id)
			}
			return fmt.Errorf("memstore insert: %w", err)
		}
		done = append(done, z.ID)
	}
	for _, z := range zs {
		z.Warehouse = nil
		s.zones[z.ID] = z
	}
	return nil
}

func (s *Store) BulkPartialUpdate(ctx context.Context, patches []model.ZonePatch) (int, error) {
	modified := 0
	for _, p := range patches {
		if err := ctx.Err(); err != nil {
			return modified, err
		}
		ok, err := s.apply(p)
		if err != nil {
			return modified, fmt.Errorf("memstore update %s: %w", p.ZoneID, err)
		}
		if ok {
			modified++
		}
	}
	return modified, nil
}

func (s *Store) apply(p model.ZonePatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[p.ZoneID]
	if !ok || p.Empty() {
		return false, nil
	}
	if p.Geometry != nil {
		if err := s.idx.Insert(z.ID, p.Geometry.Polygon); err != nil {
			return false, err
		}
	}
	p.Apply(&z, s.now())
	s.zones[z.ID] = z
	return true, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[id]; !ok {
		return false, nil
	}
	delete(s.zones, id)
	s.idx.Remove(id)
	return true, nil
}

func (s *Store) DeleteByWarehouse(ctx context.Context, warehouseID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, z := range s.zones {
		if z.WarehouseID == warehouseID {
			delete(s.zones, id)
			s.idx.Remove(id)
			n++
		}
	}
	return n, nil
}
