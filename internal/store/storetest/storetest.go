// Package storetest holds the behaviour every store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/store"
)

// Backend is a store that can also be seeded with warehouses.
type Backend interface {
	store.ZoneRepository
	store.WarehouseDirectory
	PutWarehouse(ctx context.Context, w model.Warehouse) error
}

// Square returns a closed axis-aligned square with its south-west corner at (lng, lat).
func Square(lng, lat, size float64) model.Geometry {
	return model.NewGeometry(orb.Polygon{{
		{lng, lat}, {lng + size, lat}, {lng + size, lat + size}, {lng, lat + size}, {lng, lat},
	}})
}

func Zone(id, name, warehouseID string, g model.Geometry, active bool) model.Zone {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.Zone{
		ID:          id,
		Name:        name,
		Country:     model.DefaultCountry,
		Geometry:    g,
		WarehouseID: warehouseID,
		Active:      active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Run exercises a fresh backend per subtest.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("warehouse lookups", func(t *testing.T) { testWarehouses(t, newBackend(t)) })
	t.Run("containment", func(t *testing.T) { testContainment(t, newBackend(t)) })
	t.Run("listing", func(t *testing.T) { testListing(t, newBackend(t)) })
	t.Run("insert is all or nothing", func(t *testing.T) { testInsertAtomic(t, newBackend(t)) })
	t.Run("partial update", func(t *testing.T) { testPartialUpdate(t, newBackend(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newBackend(t)) })
	t.Run("overlap", func(t *testing.T) { testOverlap(t, newBackend(t)) })
	t.Run("look-alike ids stay apart", func(t *testing.T) { testLookAlikeIDs(t, newBackend(t)) })
}

// ids differing only in punctuation or spacing must never share state
func testLookAlikeIDs(t *testing.T, b Backend) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.PutWarehouse(ctx, model.Warehouse{ID: "hub+1", Name: "A", Region: "CAIRO", Active: true, CreatedAt: base}))
	require.NoError(t, b.PutWarehouse(ctx, model.Warehouse{ID: "hub-1", Name: "B", Region: "GIZA", Active: true, CreatedAt: base.Add(time.Hour)}))

	w, err := b.GetWarehouse(ctx, "hub+1")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "hub+1", w.ID)
	assert.Equal(t, "CAIRO", w.Region)

	require.NoError(t, b.Insert(ctx, Zone("zb", "B-1", "hub-1", Square(31.20, 30.00, 0.02), true)))
	require.NoError(t, b.Insert(ctx, Zone("z b", "Spaced", "hub 1", Square(31.40, 30.00, 0.02), true)))

	n, err := b.CountByWarehouse(ctx, "hub+1")
	require.NoError(t, err)
	assert.Zero(t, n)
	zs, err := b.ListByWarehouse(ctx, "hub-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"zb"}, ids(zs))
	zs, err = b.ListByWarehouse(ctx, "hub_1")
	require.NoError(t, err)
	assert.Empty(t, zs)

	z, err := b.FindByID(ctx, "z_b")
	require.NoError(t, err)
	assert.Nil(t, z)
	z, err = b.FindByID(ctx, "z b")
	require.NoError(t, err)
	require.NotNil(t, z)
	assert.Equal(t, "hub 1", z.WarehouseID)
}

func testWarehouses(t *testing.T, b Backend) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, w := range []model.Warehouse{
		{ID: "w-cai-old-off", Region: "CAIRO", Active: false, CreatedAt: base},
		{ID: "w-cai-1", Region: "CAIRO", Active: true, CreatedAt: base.Add(time.Hour)},
		{ID: "w-cai-2", Region: "CAIRO", Active: true, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "w-giz", Region: "GIZA", Active: true, IsDefault: true, CreatedAt: base.Add(3 * time.Hour)},
	} {
		require.NoError(t, b.PutWarehouse(ctx, w))
	}

	w, err := b.FindByRegionActive(ctx, "CAIRO")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "w-cai-1", w.ID)

	w, err = b.FindByRegionActive(ctx, "ALEXANDRIA")
	require.NoError(t, err)
	assert.Nil(t, w)

	w, err = b.FindDefault(ctx)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "w-giz", w.ID)

	// without an active default the earliest active warehouse wins
	require.NoError(t, b.PutWarehouse(ctx, model.Warehouse{ID: "w-giz", Region: "GIZA", Active: false, IsDefault: true, CreatedAt: base.Add(3 * time.Hour)}))
	w, err = b.FindDefault(ctx)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "w-cai-1", w.ID)

	w, err = b.GetWarehouse(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, w)

	ok, err := b.WarehouseExists(ctx, "w-cai-2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = b.WarehouseExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testContainment(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, b.InsertMany(ctx, []model.Zone{
		Zone("z1", "Downtown", "w1", Square(31.20, 30.00, 0.02), true),
		Zone("z2", "Zamalek", "w1", Square(31.30, 30.00, 0.02), false),
	}))

	z, err := b.FindContaining(ctx, model.Point{Lat: 30.01, Lng: 31.21})
	require.NoError(t, err)
	require.NotNil(t, z)
	assert.Equal(t, "z1", z.ID)

	// inactive zones still match on containment
	z, err = b.FindContaining(ctx, model.Point{Lat: 30.01, Lng: 31.31})
	require.NoError(t, err)
	require.NotNil(t, z)
	assert.Equal(t, "z2", z.ID)
	assert.False(t, z.Active)

	z, err = b.FindContaining(ctx, model.Point{Lat: 30.01, Lng: 31.25})
	require.NoError(t, err)
	assert.Nil(t, z)

	// an active zone wins over an inactive one covering the same point
	require.NoError(t, b.Insert(ctx, Zone("z0", "Annex", "w2", Square(31.305, 30.005, 0.01), false)))
	require.NoError(t, b.Insert(ctx, Zone("z3", "Yard", "w2", Square(31.306, 30.006, 0.005), true)))
	z, err = b.FindContaining(ctx, model.Point{Lat: 30.008, Lng: 31.308})
	require.NoError(t, err)
	require.NotNil(t, z)
	assert.Equal(t, "z3", z.ID)
}

func testListing(t *testing.T, b Backend) {
	ctx := context.Background()
	fee := 25.0
	zb := Zone("b", "Bravo", "w1", Square(31.0, 30.0, 0.01), true)
	zb.ShippingFee = &fee
	require.NoError(t, b.InsertMany(ctx, []model.Zone{
		Zone("c", "Charlie", "w1", Square(31.1, 30.0, 0.01), false),
		zb,
		Zone("a", "Alpha", "w1", Square(31.2, 30.0, 0.01), true),
		Zone("d", "Delta", "w2", Square(31.3, 30.0, 0.01), true),
	}))

	zs, err := b.ListByWarehouse(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(zs))

	n, err := b.CountByWarehouse(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = b.CountByWarehouse(ctx, "none")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	zs, err = b.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d"}, ids(zs))

	z, err := b.FindByID(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, z)
	require.NotNil(t, z.ShippingFee)
	assert.InDelta(t, 25.0, *z.ShippingFee, 1e-9)
	assert.Equal(t, "w1", z.WarehouseID)
	assert.True(t, z.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	z, err = b.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, z)
}

func testInsertAtomic(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, b.Insert(ctx, Zone("x", "X", "w1", Square(31.0, 30.0, 0.01), true)))

	err := b.InsertMany(ctx, []model.Zone{
		Zone("y", "Y", "w1", Square(31.1, 30.0, 0.01), true),
		Zone("x", "X again", "w1", Square(31.2, 30.0, 0.01), true),
	})
	require.Error(t, err)

	z, err := b.FindByID(ctx, "y")
	require.NoError(t, err)
	assert.Nil(t, z)

	n, err := b.CountByWarehouse(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testPartialUpdate(t *testing.T, b Backend) {
	ctx := context.Background()
	fee := 10.0
	z := Zone("p", "Plain", "w1", Square(31.0, 30.0, 0.01), false)
	z.ShippingFee = &fee
	z.AreaName = "Old"
	require.NoError(t, b.Insert(ctx, z))

	active := true
	name := "Renamed"
	moved := Square(31.5, 30.5, 0.01)
	n, err := b.BulkPartialUpdate(ctx, []model.ZonePatch{
		{ZoneID: "p", Active: &active, Name: &name, UnsetShippingFee: true, UnsetAreaName: true, Geometry: &moved},
		{ZoneID: "missing", Active: &active},
		{ZoneID: "p"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := b.FindByID(ctx, "p")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Active)
	assert.Equal(t, "Renamed", got.Name)
	assert.Nil(t, got.ShippingFee)
	assert.Empty(t, got.AreaName)
	assert.True(t, got.UpdatedAt.After(z.UpdatedAt))

	// the containment index follows the new geometry
	hit, err := b.FindContaining(ctx, model.Point{Lat: 30.005, Lng: 31.005})
	require.NoError(t, err)
	assert.Nil(t, hit)
	hit, err = b.FindContaining(ctx, model.Point{Lat: 30.505, Lng: 31.505})
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "p", hit.ID)

	// moving between warehouses updates both listings
	w2 := "w2"
	n, err = b.BulkPartialUpdate(ctx, []model.ZonePatch{{ZoneID: "p", WarehouseID: &w2}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	c1, _ := b.CountByWarehouse(ctx, "w1")
	c2, _ := b.CountByWarehouse(ctx, "w2")
	assert.Equal(t, 0, c1)
	assert.Equal(t, 1, c2)
}

func testDelete(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, b.InsertMany(ctx, []model.Zone{
		Zone("a", "A", "w1", Square(31.0, 30.0, 0.01), true),
		Zone("b", "B", "w1", Square(31.1, 30.0, 0.01), true),
		Zone("c", "C", "w2", Square(31.2, 30.0, 0.01), true),
	}))

	ok, err := b.Delete(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = b.Delete(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)

	hit, err := b.FindContaining(ctx, model.Point{Lat: 30.005, Lng: 31.205})
	require.NoError(t, err)
	assert.Nil(t, hit)

	n, err := b.DeleteByWarehouse(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = b.DeleteByWarehouse(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	zs, err := b.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, zs)
}

func testOverlap(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, b.InsertMany(ctx, []model.Zone{
		Zone("a", "A", "w1", Square(31.00, 30.00, 0.02), true),
		Zone("b", "B", "w1", Square(31.02, 30.00, 0.02), true), // shares an edge with a
		Zone("c", "C", "w1", Square(31.10, 30.00, 0.02), true),
	}))

	zs, err := b.FindOverlapping(ctx, Square(31.01, 30.01, 0.005).Polygon)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(zs))

	zs, err = b.FindOverlapping(ctx, Square(31.015, 30.005, 0.01).Polygon)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(zs))

	// touching along an edge is not overlap
	zs, err = b.FindOverlapping(ctx, Square(31.04, 30.00, 0.02).Polygon)
	require.NoError(t, err)
	assert.Empty(t, zs)
}

func ids(zs []model.Zone) []string {
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i] = z.ID
	}
	return out
}
