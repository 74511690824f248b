package resolver

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/spatial"
	"github.com/mohammed-shakir/zonegrid/internal/store"
	"github.com/mohammed-shakir/zonegrid/internal/store/memstore"
	"github.com/mohammed-shakir/zonegrid/internal/store/storetest"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	st *memstore.Store
	r  *Resolver
}

func newFixture(t *testing.T, ws ...model.Warehouse) fixture {
	t.Helper()
	st, err := memstore.New(spatial.DefaultRes)
	require.NoError(t, err)
	for _, w := range ws {
		require.NoError(t, st.PutWarehouse(context.Background(), w))
	}
	joined := store.Joined{Zones: st, Warehouses: st}
	return fixture{st: st, r: New(joined, st, st, nil)}
}

func cairoWarehouse() model.Warehouse {
	return model.Warehouse{
		ID: "wh-cai", Name: "Cairo Hub", Code: "CAI", Region: "CAIRO", Active: true,
		Location: &model.Point{Lat: 30.0444, Lng: 31.2357}, DefaultShippingPrice: 30, CreatedAt: base,
	}
}

func defaultWarehouse() model.Warehouse {
	return model.Warehouse{
		ID: "wh-def", Name: "Main", Code: "MAIN", Region: "GIZA", Active: true, IsDefault: true,
		DefaultShippingPrice: 45, CreatedAt: base.Add(time.Hour),
	}
}

func fee(v float64) *float64 { return &v }

func TestResolve_GreenZoneUsesZoneFee(t *testing.T) {
	f := newFixture(t, cairoWarehouse(), defaultWarehouse())
	z := storetest.Zone("z-1", "CAI-cell-1", "wh-cai", storetest.Square(31.20, 30.00, 0.02), true)
	z.ShippingFee = fee(15)
	z.AreaName = "downtown"
	require.NoError(t, f.st.Insert(context.Background(), z))

	v, err := f.r.Resolve(context.Background(), Request{Lat: 30.01, Lng: 31.21})
	require.NoError(t, err)

	assert.Equal(t, GreenZone, v.Delivery.CoverageStatus)
	assert.True(t, v.Delivery.CanDeliver)
	assert.Nil(t, v.Delivery.ReasonCode)
	assert.Nil(t, v.Delivery.ReasonMessage)
	assert.InDelta(t, 15.0, v.Delivery.EffectiveShippingPrice, 1e-9)
	require.NotNil(t, v.Delivery.ShippingFee)
	assert.InDelta(t, 30.0, v.Delivery.DefaultShippingPrice, 1e-9)

	assert.Equal(t, "wh-cai", v.Warehouse.ID)
	assert.Equal(t, "z-1", *v.Location.Zone.ID)
	assert.Equal(t, "green", *v.Location.Zone.Color)
	assert.Equal(t, "downtown", *v.Location.Zone.AreaName)
	assert.Equal(t, DefaultSource, v.Location.Source)

	// no client region: the warehouse's own region is reported
	require.NotNil(t, v.Location.Region.Normalized)
	assert.Equal(t, "CAIRO", *v.Location.Region.Normalized)
	assert.True(t, v.Location.Region.IsSupported)
	assert.Nil(t, v.Location.Region.Raw)
}

func TestResolve_GreyZoneFallsBackToWarehousePrice(t *testing.T) {
	f := newFixture(t, cairoWarehouse())
	require.NoError(t, f.st.Insert(context.Background(),
		storetest.Zone("z-1", "CAI-cell-1", "wh-cai", storetest.Square(31.20, 30.00, 0.02), false)))

	v, err := f.r.Resolve(context.Background(), Request{Lat: 30.01, Lng: 31.21, Region: "  Alex ", Source: "manual"})
	require.NoError(t, err)

	assert.Equal(t, GreyZone, v.Delivery.CoverageStatus)
	assert.False(t, v.Delivery.CanDeliver)
	require.NotNil(t, v.Delivery.ReasonCode)
	assert.Equal(t, ReasonGreyZone, *v.Delivery.ReasonCode)
	assert.Nil(t, v.Delivery.ShippingFee)
	assert.InDelta(t, 30.0, v.Delivery.EffectiveShippingPrice, 1e-9)
	assert.Equal(t, "grey", *v.Location.Zone.Color)
	assert.Equal(t, "manual", v.Location.Source)

	// client region wins over the warehouse region when present
	assert.Equal(t, "ALEXANDRIA", *v.Location.Region.Normalized)
	assert.Equal(t, "Alex", *v.Location.Region.Raw)
}

func TestResolve_SupportedRegionOutsideZones(t *testing.T) {
	f := newFixture(t, cairoWarehouse(), defaultWarehouse())

	v, err := f.r.Resolve(context.Background(), Request{Lat: 30.05, Lng: 31.24, Region: "Cairo"})
	require.NoError(t, err)

	assert.Equal(t, OutsideZonesSupported, v.Delivery.CoverageStatus)
	assert.False(t, v.Delivery.CanDeliver)
	assert.Equal(t, ReasonOutsideGrid, *v.Delivery.ReasonCode)
	assert.Equal(t, "wh-cai", v.Warehouse.ID)
	assert.InDelta(t, 30.0, v.Delivery.EffectiveShippingPrice, 1e-9)
	assert.Equal(t, "CAIRO", *v.Location.Region.Normalized)
	assert.True(t, v.Location.Region.IsSupported)
	assert.Nil(t, v.Location.Zone.ID)
	assert.Nil(t, v.Location.Zone.Color)
}

func TestResolve_SupportedRegionWithoutWarehouseUsesDefault(t *testing.T) {
	f := newFixture(t, cairoWarehouse(), defaultWarehouse())

	v, err := f.r.Resolve(context.Background(), Request{Lat: 31.2, Lng: 29.9, Region: "الإسكندرية"})
	require.NoError(t, err)

	assert.Equal(t, OutsideZonesSupported, v.Delivery.CoverageStatus)
	assert.Equal(t, "wh-def", v.Warehouse.ID)
	assert.True(t, v.Warehouse.IsDefault)
	assert.Equal(t, "ALEXANDRIA", *v.Location.Region.Normalized)
}

func TestResolve_UnknownRegionFallsBackToDefault(t *testing.T) {
	f := newFixture(t, cairoWarehouse(), defaultWarehouse())

	v, err := f.r.Resolve(context.Background(), Request{Lat: 30.05, Lng: 31.24, Region: "Atlantis"})
	require.NoError(t, err)

	assert.Equal(t, OutsideZonesUnsupported, v.Delivery.CoverageStatus)
	assert.False(t, v.Delivery.CanDeliver)
	assert.Equal(t, ReasonUnsupportedRegion, *v.Delivery.ReasonCode)
	assert.Equal(t, "wh-def", v.Warehouse.ID)
	assert.InDelta(t, 45.0, v.Delivery.EffectiveShippingPrice, 1e-9)
	// reported region falls back to the chosen warehouse's region
	assert.Equal(t, "GIZA", *v.Location.Region.Normalized)
	assert.True(t, v.Location.Region.IsSupported)
	assert.Equal(t, "Atlantis", *v.Location.Region.Raw)
}

func TestResolve_UnsupportedKnownRegion(t *testing.T) {
	f := newFixture(t, cairoWarehouse())

	v, err := f.r.Resolve(context.Background(), Request{Lat: 25.69, Lng: 32.64, Region: "Luxor"})
	require.NoError(t, err)

	assert.Equal(t, OutsideZonesUnsupported, v.Delivery.CoverageStatus)
	assert.Equal(t, "wh-cai", v.Warehouse.ID, "earliest active warehouse without a default")
	assert.Equal(t, "LUXOR", *v.Location.Region.Normalized)
	// the warehouse region still satisfies membership
	assert.True(t, v.Location.Region.IsSupported)
}

func TestResolve_ConfigurationErrors(t *testing.T) {
	ctx := context.Background()

	empty := newFixture(t)
	_, err := empty.r.Resolve(ctx, Request{Lat: 30, Lng: 31, Region: "Cairo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
	assert.Equal(t, "no_active_warehouse", apperr.CodeOf(err))

	orphan := newFixture(t, cairoWarehouse())
	require.NoError(t, orphan.st.Insert(ctx,
		storetest.Zone("z-x", "orphan", "wh-gone", storetest.Square(31.20, 30.00, 0.02), true)))
	_, err = orphan.r.Resolve(ctx, Request{Lat: 30.01, Lng: 31.21})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
	assert.Equal(t, "zone_without_warehouse", apperr.CodeOf(err))
}

func TestResolve_InvalidCoordinates(t *testing.T) {
	f := newFixture(t, cairoWarehouse())
	for _, req := range []Request{
		{Lat: math.NaN(), Lng: 31},
		{Lat: 30, Lng: math.Inf(1)},
		{Lat: 91, Lng: 31},
		{Lat: 30, Lng: -181},
	} {
		_, err := f.r.Resolve(context.Background(), req)
		assert.ErrorIs(t, err, apperr.ErrValidation, "request %+v", req)
	}
}

func TestResolve_CanceledContextIsRetryable(t *testing.T) {
	f := newFixture(t, cairoWarehouse())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.r.Resolve(ctx, Request{Lat: 30, Lng: 31})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestResolve_EffectivePriceIsNeverNegativeOrNaN(t *testing.T) {
	w := cairoWarehouse()
	w.DefaultShippingPrice = math.NaN()
	f := newFixture(t, w)

	z := storetest.Zone("z-1", "a", "wh-cai", storetest.Square(31.20, 30.00, 0.02), true)
	z.ShippingFee = fee(-5)
	require.NoError(t, f.st.Insert(context.Background(), z))

	v, err := f.r.Resolve(context.Background(), Request{Lat: 30.01, Lng: 31.21})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Delivery.EffectiveShippingPrice)
	assert.Nil(t, v.Delivery.ShippingFee)
}

func TestVerdict_NoZoneMarshalsAllNull(t *testing.T) {
	f := newFixture(t, defaultWarehouse())
	v, err := f.r.Resolve(context.Background(), Request{Lat: 30.05, Lng: 31.24})
	require.NoError(t, err)

	b, err := json.Marshal(v)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))

	loc := got["location"].(map[string]any)
	assert.Equal(t, map[string]any{"id": nil, "color": nil, "name": nil, "areaName": nil}, loc["zone"])
	assert.Equal(t, map[string]any{"lat": 30.05, "lng": 31.24}, loc["coordinates"])
	region := loc["region"].(map[string]any)
	assert.Nil(t, region["raw"])

	delivery := got["delivery"].(map[string]any)
	assert.Nil(t, delivery["shippingFee"])
	assert.Equal(t, "OUTSIDE_ZONES_UNSUPPORTED_GOVERNORATE", delivery["coverageStatus"])
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest(" 30.05", "31.24 ", "Cairo", "")
	require.NoError(t, err)
	assert.Equal(t, Request{Lat: 30.05, Lng: 31.24, Region: "Cairo"}, req)

	_, err = ParseRequest("abc", "31", "", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = ParseRequest("30", "", "", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListOptions_GroupsDedupsAndSorts(t *testing.T) {
	f := newFixture(t, cairoWarehouse())
	ctx := context.Background()

	mk := func(id, area, region, wh string, active bool, lng float64) model.Zone {
		z := storetest.Zone(id, id, wh, storetest.Square(lng, 30.0, 0.01), active)
		z.AreaName = area
		z.Region = region
		return z
	}
	require.NoError(t, f.st.InsertMany(ctx, []model.Zone{
		mk("a", "zamalek", "CAIRO", "wh-cai", true, 31.00),
		mk("b", "maadi", "CAIRO", "wh-cai", true, 31.02),
		mk("c", "zamalek", "CAIRO", "wh-cai", true, 31.04), // duplicate pair
		mk("d", "zamalek", "CAIRO", "wh-2", true, 31.06),
		mk("e", "hidden", "CAIRO", "wh-cai", false, 31.08),
		mk("f", "", "CAIRO", "wh-cai", true, 31.10),
		mk("g", "dokki", "Giza", "wh-cai", true, 31.12),
		mk("h", "karnak", "LUXOR", "wh-cai", true, 31.14),
	}))

	opts, err := f.r.ListOptions(ctx)
	require.NoError(t, err)
	require.Len(t, opts.Governorates, 4)

	codes := make([]string, len(opts.Governorates))
	for i, g := range opts.Governorates {
		codes[i] = g.Code
	}
	assert.Equal(t, []string{"CAIRO", "GIZA", "ALEXANDRIA", "QALYUBIA"}, codes)

	cairo := opts.Governorates[0]
	assert.Equal(t, "Cairo", cairo.Label)
	assert.True(t, cairo.HasAreas)
	assert.Equal(t, []Area{
		{Name: "maadi", WarehouseID: "wh-cai"},
		{Name: "zamalek", WarehouseID: "wh-2"},
		{Name: "zamalek", WarehouseID: "wh-cai"},
	}, cairo.Areas)

	assert.Equal(t, []Area{{Name: "dokki", WarehouseID: "wh-cai"}}, opts.Governorates[1].Areas)

	alex := opts.Governorates[2]
	assert.False(t, alex.HasAreas)
	assert.NotNil(t, alex.Areas)
	assert.Empty(t, alex.Areas)
}
