// Package spatial answers "which zone contains this point" with an H3 cell
// bucket index in front of an exact planar polygon test.
package spatial

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/zonegrid/internal/geo"
)

const DefaultRes = 7

// average hexagon edge length in km per resolution
var edgeKm = [16]float64{
	1281.256, 483.057, 182.513, 68.979, 26.072, 9.854, 3.725, 1.406,
	0.531, 0.201, 0.076, 0.0287, 0.0108, 0.0041, 0.00154, 0.00058,
}

const maxSamplesPerEdge = 4096

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// PointCell returns the H3 cell holding pt.
func PointCell(pt orb.Point, res int) (h3.Cell, error) {
	if err := validateRes(res); err != nil {
		return 0, err
	}
	c, err := h3.LatLngToCell(h3.NewLatLng(pt.Lat(), pt.Lon()), res)
	if err != nil {
		return 0, fmt.Errorf("h3 point cell: %w", err)
	}
	return c, nil
}

// Cover returns a sorted, de-duplicated set of cells such that every point of
// poly falls in one of them: cells whose centres lie inside the polygon's
// bounding box, cells sampled along every ring edge, and one ring of
// neighbours around all of those.
func Cover(poly orb.Polygon, res int) ([]h3.Cell, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if len(poly) == 0 || len(poly[0]) < 4 {
		return nil, errors.New("outer ring has < 4 vertices")
	}

	seed := make(map[h3.Cell]struct{})

	b := poly.Bound()
	outer := h3.GeoLoop{
		{Lat: b.Min.Lat(), Lng: b.Min.Lon()},
		{Lat: b.Min.Lat(), Lng: b.Max.Lon()},
		{Lat: b.Max.Lat(), Lng: b.Max.Lon()},
		{Lat: b.Max.Lat(), Lng: b.Min.Lon()},
	}
	filled, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	for _, c := range filled {
		seed[c] = struct{}{}
	}

	step := edgeKm[res] / 2
	ring := poly[0]
	for i := 0; i+1 < len(ring); i++ {
		a, z := ring[i], ring[i+1]
		n := samples(a, z, step)
		for k := 0; k <= n; k++ {
			t := float64(k) / float64(n)
			pt := orb.Point{a.Lon() + (z.Lon()-a.Lon())*t, a.Lat() + (z.Lat()-a.Lat())*t}
			c, err := PointCell(pt, res)
			if err != nil {
				return nil, err
			}
			seed[c] = struct{}{}
		}
	}

	out := make(map[h3.Cell]struct{}, len(seed)*3)
	for c := range seed {
		disk, err := h3.GridDisk(c, 1)
		if err != nil {
			return nil, fmt.Errorf("h3 grid disk: %w", err)
		}
		for _, d := range disk {
			out[d] = struct{}{}
		}
	}

	cells := make([]h3.Cell, 0, len(out))
	for c := range out {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })
	return cells, nil
}

// CellStrings is Cover with cells rendered as H3 index strings.
func CellStrings(poly orb.Polygon, res int) ([]string, error) {
	cells, err := Cover(poly, res)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.String()
	}
	return out, nil
}

func samples(a, z orb.Point, stepKm float64) int {
	lat := (a.Lat() + z.Lat()) / 2
	dx := (z.Lon() - a.Lon()) * geo.KmPerDegreeLng(lat)
	dy := (z.Lat() - a.Lat()) * geo.KmPerDegreeLat
	n := int(math.Ceil(math.Hypot(dx, dy) / stepKm))
	if n < 1 {
		n = 1
	}
	if n > maxSamplesPerEdge {
		n = maxSamplesPerEdge
	}
	return n
}
