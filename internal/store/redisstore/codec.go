package redisstore

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/zonegrid/internal/core/model"
)

// DefaultDecodeCacheSize bounds the number of decoded zone documents kept in process.
const DefaultDecodeCacheSize = 4096

// zoneCodec decodes zone documents, remembering results by content hash so
// repeated containment lookups skip GeoJSON parsing. A changed document has
// a different hash, so entries never go stale.
type zoneCodec struct {
	cache *lru.Cache[uint64, model.Zone]
}

func newZoneCodec(size int) (*zoneCodec, error) {
	if size <= 0 {
		return &zoneCodec{}, nil
	}
	c, err := lru.New[uint64, model.Zone](size)
	if err != nil {
		return nil, fmt.Errorf("zone decode cache: %w", err)
	}
	return &zoneCodec{cache: c}, nil
}

func (c *zoneCodec) encode(z model.Zone) ([]byte, error) {
	z.Warehouse = nil
	b, err := json.Marshal(z)
	if err != nil {
		return nil, fmt.Errorf("encode zone %s: %w", z.ID, err)
	}
	return b, nil
}

func (c *zoneCodec) decode(raw []byte) (model.Zone, error) {
	var h uint64
	if c.cache != nil {
		h = xxhash.Sum64(raw)
		if z, ok := c.cache.Get(h); ok {
			return cloneZone(z), nil
		}
	}
	var z model.Zone
	if err := json.Unmarshal(raw, &z); err != nil {
		return model.Zone{}, fmt.Errorf("decode zone: %w", err)
	}
	if c.cache != nil {
		c.cache.Add(h, z)
	}
	return cloneZone(z), nil
}

func (c *zoneCodec) len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

func cloneZone(z model.Zone) model.Zone {
	if z.ShippingFee != nil {
		v := *z.ShippingFee
		z.ShippingFee = &v
	}
	if z.Geometry.Polygon != nil {
		z.Geometry.Polygon = z.Geometry.Polygon.Clone()
	}
	return z
}
