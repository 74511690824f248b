// Package seed loads warehouses and zones from a JSON file into the stores at
// startup.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/geo"
	"github.com/mohammed-shakir/zonegrid/internal/region"
)

// File is the seed document: {"warehouses":[...],"zones":[...]}.
type File struct {
	Warehouses []model.Warehouse `json:"warehouses"`
	Zones      []model.Zone      `json:"zones"`
}

// UnmarshalJSON decodes the document; zones that omit "active" are active.
func (f *File) UnmarshalJSON(data []byte) error {
	var raw struct {
		Warehouses []model.Warehouse `json:"warehouses"`
		Zones      []json.RawMessage `json:"zones"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	zs := make([]model.Zone, len(raw.Zones))
	for i, doc := range raw.Zones {
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(doc, &keys); err != nil {
			return fmt.Errorf("zone %d: %w", i, err)
		}
		if err := json.Unmarshal(doc, &zs[i]); err != nil {
			return fmt.Errorf("zone %d: %w", i, err)
		}
		if _, ok := keys["active"]; !ok {
			zs[i].Active = true
		}
	}
	*f = File{Warehouses: raw.Warehouses, Zones: zs}
	return nil
}

type WarehouseWriter interface {
	GetWarehouse(ctx context.Context, id string) (*model.Warehouse, error)
	PutWarehouse(ctx context.Context, w model.Warehouse) error
}

type ZoneWriter interface {
	FindByID(ctx context.Context, id string) (*model.Zone, error)
	InsertMany(ctx context.Context, zs []model.Zone) error
}

type Result struct {
	Warehouses   int
	Zones        int
	SkippedZones int
}

func Read(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return f, nil
}

// Load upserts every warehouse and inserts the zones not already stored.
// Zone regions are stamped from their warehouse; a zone naming an unknown
// warehouse fails the whole load before any zone is written.
func Load(ctx context.Context, f File, warehouses WarehouseWriter, zones ZoneWriter, now time.Time) (Result, error) {
	var res Result
	for _, w := range f.Warehouses {
		if strings.TrimSpace(w.ID) == "" {
			return res, fmt.Errorf("seed warehouse %q has no id", w.Name)
		}
		code, err := regionOf(w.Region)
		if err != nil {
			return res, fmt.Errorf("seed warehouse %s: %w", w.ID, err)
		}
		w.Region = string(code)
		if w.CreatedAt.IsZero() {
			w.CreatedAt = now
		}
		if err := warehouses.PutWarehouse(ctx, w); err != nil {
			return res, fmt.Errorf("seed warehouse %s: %w", w.ID, err)
		}
		res.Warehouses++
	}

	pending := make([]model.Zone, 0, len(f.Zones))
	for i, z := range f.Zones {
		if z.ID == "" {
			z.ID = uuid.NewString()
		} else if cur, err := zones.FindByID(ctx, z.ID); err != nil {
			return res, fmt.Errorf("seed zone %s: %w", z.ID, err)
		} else if cur != nil {
			res.SkippedZones++
			continue
		}
		if err := geo.ValidatePolygon(z.Geometry.Polygon); err != nil {
			return res, fmt.Errorf("seed zone %d (%s): %w", i, z.Name, err)
		}
		w, err := warehouses.GetWarehouse(ctx, z.WarehouseID)
		if err != nil {
			return res, fmt.Errorf("seed zone %s: %w", z.ID, err)
		}
		if w == nil {
			return res, fmt.Errorf("seed zone %s: warehouse %q not found", z.ID, z.WarehouseID)
		}
		z.Region = w.Region
		z.AreaName = strings.ToLower(strings.TrimSpace(z.AreaName))
		if z.Country == "" {
			z.Country = model.DefaultCountry
		}
		if z.CreatedAt.IsZero() {
			z.CreatedAt = now
		}
		if z.UpdatedAt.IsZero() {
			z.UpdatedAt = z.CreatedAt
		}
		pending = append(pending, z)
	}

	if len(pending) > 0 {
		if err := zones.InsertMany(ctx, pending); err != nil {
			return res, fmt.Errorf("seed zones: %w", err)
		}
	}
	res.Zones = len(pending)
	return res, nil
}

// regionOf accepts a canonical code in any case, else a free-text region.
func regionOf(raw string) (region.Code, error) {
	if c := region.Code(strings.ToUpper(strings.TrimSpace(raw))); region.Known(c) {
		return c, nil
	}
	if c, ok := region.Normalize(raw); ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown region %q", raw)
}
