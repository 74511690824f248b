package spatial

import (
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/zonegrid/internal/geo"
)

// Index is the point-containment capability zones are looked up through.
type Index interface {
	Insert(id string, poly orb.Polygon) error
	Remove(id string)
	QueryContaining(pt orb.Point) ([]string, error)
}

// H3Index keeps polygons in memory, bucketed by covering H3 cells.
type H3Index struct {
	res int

	mu      sync.RWMutex
	buckets map[h3.Cell]map[string]struct{}
	polys   map[string]orb.Polygon
	cells   map[string][]h3.Cell
}

var _ Index = (*H3Index)(nil)

func NewH3Index(res int) (*H3Index, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	return &H3Index{
		res:     res,
		buckets: make(map[h3.Cell]map[string]struct{}),
		polys:   make(map[string]orb.Polygon),
		cells:   make(map[string][]h3.Cell),
	}, nil
}

func (x *H3Index) Res() int { return x.res }

// Insert adds or replaces the polygon stored under id.
func (x *H3Index) Insert(id string, poly orb.Polygon) error {
	cells, err := Cover(poly, x.res)
	if err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(id)
	for _, c := range cells {
		b := x.buckets[c]
		if b == nil {
			b = make(map[string]struct{})
			x.buckets[c] = b
		}
		b[id] = struct{}{}
	}
	x.polys[id] = poly
	x.cells[id] = cells
	return nil
}

func (x *H3Index) Remove(id string) {
	x.mu.Lock()
	x.removeLocked(id)
	x.mu.Unlock()
}

func (x *H3Index) removeLocked(id string) {
	for _, c := range x.cells[id] {
		if b := x.buckets[c]; b != nil {
			delete(b, id)
			if len(b) == 0 {
				delete(x.buckets, c)
			}
		}
	}
	delete(x.cells, id)
	delete(x.polys, id)
}

// QueryContaining returns the ids of all polygons containing pt, sorted.
func (x *H3Index) QueryContaining(pt orb.Point) ([]string, error) {
	c, err := PointCell(pt, x.res)
	if err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []string
	for id := range x.buckets[c] {
		if geo.Contains(x.polys[id], pt) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (x *H3Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.polys)
}
