// Package geo holds the flat-earth geometry used by zones: polygon
// validation, containment, bounding boxes and overlap tests.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// KmPerDegreeLat is the flat-earth approximation used everywhere in the service.
const KmPerDegreeLat = 111.0

const eps = 1e-12

// KmPerDegreeLng returns the km length of one degree of longitude at lat.
// Near the poles the cosine collapses to zero and is treated as 1.
func KmPerDegreeLng(lat float64) float64 {
	c := math.Cos(lat * math.Pi / 180)
	if math.Abs(c) <= eps {
		c = 1
	}
	return KmPerDegreeLat * c
}

// BoundAround returns the box spanning radiusKm in each direction from center.
func BoundAround(center orb.Point, radiusKm float64) orb.Bound {
	dLat := radiusKm / KmPerDegreeLat
	dLng := radiusKm / KmPerDegreeLng(center.Lat())
	return orb.Bound{
		Min: orb.Point{center.Lon() - dLng, center.Lat() - dLat},
		Max: orb.Point{center.Lon() + dLng, center.Lat() + dLat},
	}
}

func ValidCoordinate(lat, lng float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lng) && !math.IsInf(lat, 0) && !math.IsInf(lng, 0) &&
		lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

var (
	ErrEmptyPolygon = errors.New("polygon has no rings")
	ErrZeroArea     = errors.New("polygon encloses zero area")
)

// ValidatePolygon checks that p is a simple polygon usable as a zone:
// closed rings of at least 4 positions, coordinates in range, non-zero area.
func ValidatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return ErrEmptyPolygon
	}
	for i, ring := range p {
		if len(ring) < 4 {
			return fmt.Errorf("ring %d has < 4 positions", i)
		}
		if !ring.Closed() {
			return fmt.Errorf("ring %d is not closed", i)
		}
		for _, pt := range ring {
			if !ValidCoordinate(pt.Lat(), pt.Lon()) {
				return fmt.Errorf("ring %d has coordinate out of range: [%v,%v]", i, pt.Lon(), pt.Lat())
			}
		}
	}
	if math.Abs(planar.Area(p[0])) <= eps {
		return ErrZeroArea
	}
	return nil
}

// Contains reports whether pt is inside p or on its boundary.
func Contains(p orb.Polygon, pt orb.Point) bool {
	if len(p) == 0 {
		return false
	}
	if !p.Bound().Contains(pt) {
		return false
	}
	return planar.PolygonContains(p, pt)
}

// StrictlyInside reports whether pt is in the interior of the outer ring of p.
func StrictlyInside(p orb.Polygon, pt orb.Point) bool {
	if !Contains(p, pt) {
		return false
	}
	return !onRing(p[0], pt)
}

// Overlaps reports whether the outer rings of a and b share interior area.
// Polygons that only touch along edges or at vertices do not overlap.
func Overlaps(a, b orb.Polygon) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	ra, rb := a[0], b[0]
	for _, pt := range ra {
		if StrictlyInside(b, pt) {
			return true
		}
	}
	for _, pt := range rb {
		if StrictlyInside(a, pt) {
			return true
		}
	}
	for i := 0; i+1 < len(ra); i++ {
		for j := 0; j+1 < len(rb); j++ {
			if properCross(ra[i], ra[i+1], rb[j], rb[j+1]) {
				return true
			}
		}
	}
	// identical or vertex-aligned shapes: fall back to interior sample points
	return StrictlyInside(b, interiorPoint(ra)) || StrictlyInside(a, interiorPoint(rb))
}

func interiorPoint(r orb.Ring) orb.Point {
	c, _ := planar.CentroidArea(r)
	return c
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func properCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	return ((d1 > eps && d2 < -eps) || (d1 < -eps && d2 > eps)) &&
		((d3 > eps && d4 < -eps) || (d3 < -eps && d4 > eps))
}

func onRing(r orb.Ring, pt orb.Point) bool {
	for i := 0; i+1 < len(r); i++ {
		if onSegment(r[i], r[i+1], pt) {
			return true
		}
	}
	return false
}

func onSegment(a, b, pt orb.Point) bool {
	if math.Abs(cross(a, b, pt)) > 1e-10 {
		return false
	}
	return pt[0] >= math.Min(a[0], b[0])-eps && pt[0] <= math.Max(a[0], b[0])+eps &&
		pt[1] >= math.Min(a[1], b[1])-eps && pt[1] <= math.Max(a[1], b[1])+eps
}
