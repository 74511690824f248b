package model

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Geometry is a single GeoJSON Polygon, rings of [lng,lat].
type Geometry struct {
	orb.Polygon
}

func NewGeometry(p orb.Polygon) Geometry { return Geometry{Polygon: p} }

func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.Polygon == nil {
		return []byte("null"), nil
	}
	b, err := json.Marshal(geojson.NewGeometry(g.Polygon))
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	return b, nil
}

func (g *Geometry) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		g.Polygon = nil
		return nil
	}
	gg, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return fmt.Errorf("parse geometry: %w", err)
	}
	poly, ok := gg.Geometry().(orb.Polygon)
	if !ok {
		return fmt.Errorf(`unsupported GeoJSON "type": %q (must be Polygon)`, gg.Type)
	}
	g.Polygon = poly
	return nil
}
