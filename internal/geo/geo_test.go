package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cairo = orb.Point{31.2357, 30.0444}

func square(minLng, minLat, size float64) orb.Polygon {
	return orb.Polygon{{
		{minLng, minLat}, {minLng + size, minLat}, {minLng + size, minLat + size},
		{minLng, minLat + size}, {minLng, minLat},
	}}
}

func TestBoundAround_SymmetricDegrees(t *testing.T) {
	b := BoundAround(cairo, 5)

	assert.InDelta(t, 5/111.0, b.Max.Lat()-cairo.Lat(), 1e-12)
	assert.InDelta(t, 5/111.0, cairo.Lat()-b.Min.Lat(), 1e-12)
	wantLng := 5 / (111.0 * math.Cos(cairo.Lat()*math.Pi/180))
	assert.InDelta(t, wantLng, b.Max.Lon()-cairo.Lon(), 1e-12)
}

func TestKmPerDegreeLng_PoleGuard(t *testing.T) {
	assert.InDelta(t, KmPerDegreeLat, KmPerDegreeLng(90), 1e-9)
	assert.InDelta(t, KmPerDegreeLat, KmPerDegreeLng(0), 1e-9)
}

func TestValidatePolygon(t *testing.T) {
	require.NoError(t, ValidatePolygon(square(31, 30, 0.01)))

	assert.ErrorIs(t, ValidatePolygon(nil), ErrEmptyPolygon)

	open := orb.Polygon{{{31, 30}, {31.1, 30}, {31.1, 30.1}, {31, 30.1}}}
	assert.Error(t, ValidatePolygon(open))

	short := orb.Polygon{{{31, 30}, {31.1, 30}, {31, 30}}}
	assert.Error(t, ValidatePolygon(short))

	flat := orb.Polygon{{{31, 30}, {31.1, 30}, {31.2, 30}, {31, 30}}}
	assert.ErrorIs(t, ValidatePolygon(flat), ErrZeroArea)

	outOfRange := square(179.99, 30, 0.5)
	assert.Error(t, ValidatePolygon(outOfRange))
}

func TestContainsAndStrictlyInside(t *testing.T) {
	sq := square(31, 30, 1)

	assert.True(t, Contains(sq, orb.Point{31.5, 30.5}))
	assert.True(t, StrictlyInside(sq, orb.Point{31.5, 30.5}))
	assert.False(t, Contains(sq, orb.Point{32.5, 30.5}))

	edge := orb.Point{31, 30.5}
	assert.False(t, StrictlyInside(sq, edge))
}

func TestOverlaps(t *testing.T) {
	a := square(31, 30, 1)

	assert.True(t, Overlaps(a, square(31.5, 30.5, 1)), "partial overlap")
	assert.True(t, Overlaps(a, a), "identical")
	assert.True(t, Overlaps(a, square(31.25, 30.25, 0.5)), "contained")
	assert.False(t, Overlaps(a, square(32, 30, 1)), "shared edge only")
	assert.False(t, Overlaps(a, square(33, 30, 1)), "disjoint")

	cross := orb.Polygon{{{31.4, 29.5}, {31.6, 29.5}, {31.6, 31.5}, {31.4, 31.5}, {31.4, 29.5}}}
	assert.True(t, Overlaps(a, cross), "crossing bars with no vertex inside")
}

func TestHexGrid_ScenarioRadius5Side1(t *testing.T) {
	b := BoundAround(cairo, 5)

	cells, err := HexGrid(b, 1, 20000)
	require.NoError(t, err)
	require.Len(t, cells, 30)

	for i, c := range cells {
		require.NoError(t, ValidatePolygon(c), "cell %d", i)
		require.Len(t, c[0], 7)
		for _, pt := range c[0] {
			assert.True(t, b.Contains(pt), "cell %d vertex %v outside bound", i, pt)
		}
	}
}

func TestHexGrid_AreaMatchesSide(t *testing.T) {
	b := BoundAround(cairo, 5)
	cells, err := HexGrid(b, 1, 0)
	require.NoError(t, err)

	kmLng := KmPerDegreeLng(b.Center().Lat())
	wantKm2 := 3 * math.Sqrt(3) / 2
	gotKm2 := math.Abs(planar.Area(cells[0][0])) * kmLng * KmPerDegreeLat
	assert.InDelta(t, wantKm2, gotKm2, 1e-6)
}

func TestHexGrid_NeighboursTouchButNeverOverlap(t *testing.T) {
	cells, err := HexGrid(BoundAround(cairo, 3), 0.5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, cells)

	for i := range cells {
		for j := i + 1; j < len(cells); j++ {
			require.False(t, Overlaps(cells[i], cells[j]), "cells %d and %d overlap", i, j)
		}
	}
}

func TestHexGrid_ColumnMajorOrder(t *testing.T) {
	cells, err := HexGrid(BoundAround(cairo, 5), 1, 0)
	require.NoError(t, err)

	first := cells[0].Bound().Center()
	second := cells[1].Bound().Center()
	assert.InDelta(t, first.Lon(), second.Lon(), 1e-9, "rows share a column")
	assert.Greater(t, second.Lat(), first.Lat(), "rows go south to north")

	nextCol := cells[5].Bound().Center()
	assert.Greater(t, nextCol.Lon(), first.Lon(), "columns go west to east")
	assert.Greater(t, nextCol.Lat(), first.Lat(), "odd columns shift north")
}

func TestHexGrid_DegenerateAndCapped(t *testing.T) {
	b := BoundAround(cairo, 0.5)
	cells, err := HexGrid(b, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, cells, "hex wider than the box yields no cells")

	_, err = HexGrid(BoundAround(cairo, 500), 0.01, 20000)
	assert.True(t, errors.Is(err, ErrTooManyCells))

	_, err = HexGrid(b, 0, 0)
	assert.Error(t, err)
	_, err = HexGrid(b, math.NaN(), 0)
	assert.Error(t, err)
}
