package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Hexagons are flat-topped: the first vertex sits due east of the centre and
// vertices follow counter-clockwise every 60°. Columns run west to east with
// odd columns shifted north by half a hex height. Cells are returned
// column-major: west to east, and south to north inside a column. Only
// hexagons lying fully inside the bound are produced and the lattice is
// centred in it.

var ErrTooManyCells = errors.New("hex grid exceeds cell cap")

type HexLayout struct {
	Cols, Rows int
	SideKm     float64
}

// Count is the number of cells the layout produces.
func (l HexLayout) Count() int { return l.Cols * l.Rows }

// PlanHexGrid sizes the lattice for b without building polygons. maxCells <= 0
// disables the cap.
func PlanHexGrid(b orb.Bound, sideKm float64, maxCells int) (HexLayout, error) {
	if !(sideKm > 0) || math.IsInf(sideKm, 0) {
		return HexLayout{}, fmt.Errorf("cell side must be a positive number, got %v", sideKm)
	}
	widthKm, heightKm := boundKm(b)
	if math.IsNaN(widthKm) || math.IsNaN(heightKm) || math.IsInf(widthKm, 0) || math.IsInf(heightKm, 0) {
		return HexLayout{}, errors.New("bound is not finite")
	}
	h := math.Sqrt(3) * sideKm

	// cheap upper bound before integer math so extreme ratios cannot overflow
	est := (widthKm/(1.5*sideKm) + 1) * (heightKm/h + 1)
	if maxCells > 0 && est > float64(maxCells)*1.5+16 {
		return HexLayout{}, fmt.Errorf("%w: ~%.0f cells > %d", ErrTooManyCells, est, maxCells)
	}

	cols := 0
	if widthKm >= 2*sideKm {
		cols = int(math.Floor((widthKm-2*sideKm)/(1.5*sideKm))) + 1
	}
	extra := 0.0
	if cols > 1 {
		extra = h / 2
	}
	rows := 0
	if heightKm-extra >= h {
		rows = int(math.Floor((heightKm - extra) / h))
	}
	if cols == 0 || rows == 0 {
		cols, rows = 0, 0
	}
	l := HexLayout{Cols: cols, Rows: rows, SideKm: sideKm}
	if maxCells > 0 && l.Count() > maxCells {
		return HexLayout{}, fmt.Errorf("%w: %d cells > %d", ErrTooManyCells, l.Count(), maxCells)
	}
	return l, nil
}

// HexGrid tessellates b into flat-topped hexagons of the given side length.
func HexGrid(b orb.Bound, sideKm float64, maxCells int) ([]orb.Polygon, error) {
	l, err := PlanHexGrid(b, sideKm, maxCells)
	if err != nil {
		return nil, err
	}
	if l.Count() == 0 {
		return nil, nil
	}

	lat0 := b.Center().Lat()
	kmLng := KmPerDegreeLng(lat0)
	widthKm, heightKm := boundKm(b)

	s := sideKm
	h := math.Sqrt(3) * s
	layoutW := 2*s + float64(l.Cols-1)*1.5*s
	layoutH := float64(l.Rows) * h
	if l.Cols > 1 {
		layoutH += h / 2
	}
	x0 := (widthKm-layoutW)/2 + s
	y0 := (heightKm-layoutH)/2 + h/2

	toPoint := func(xKm, yKm float64) orb.Point {
		return orb.Point{b.Min.Lon() + xKm/kmLng, b.Min.Lat() + yKm/KmPerDegreeLat}
	}

	out := make([]orb.Polygon, 0, l.Count())
	for c := 0; c < l.Cols; c++ {
		cx := x0 + float64(c)*1.5*s
		shift := 0.0
		if c%2 == 1 {
			shift = h / 2
		}
		for r := 0; r < l.Rows; r++ {
			cy := y0 + float64(r)*h + shift
			ring := make(orb.Ring, 0, 7)
			for k := 0; k < 6; k++ {
				a := float64(k) * math.Pi / 3
				ring = append(ring, toPoint(cx+s*math.Cos(a), cy+s*math.Sin(a)))
			}
			ring = append(ring, ring[0])
			out = append(out, orb.Polygon{ring})
		}
	}
	return out, nil
}

func boundKm(b orb.Bound) (float64, float64) {
	lat0 := b.Center().Lat()
	return (b.Max.Lon() - b.Min.Lon()) * KmPerDegreeLng(lat0), (b.Max.Lat() - b.Min.Lat()) * KmPerDegreeLat
}
