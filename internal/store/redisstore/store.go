package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"

	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/core/observability"
	"github.com/mohammed-shakir/zonegrid/internal/geo"
	"github.com/mohammed-shakir/zonegrid/internal/spatial"
	"github.com/mohammed-shakir/zonegrid/internal/store"
)

const maxTxRetries = 8

// Store implements the zone repository and warehouse directory on Redis.
type Store struct {
	cli   *Client
	res   int
	codec *zoneCodec
	now   func() time.Time
}

var (
	_ store.WarehouseDirectory = (*Store)(nil)
	_ store.ZoneRepository     = (*Store)(nil)
)

func NewStore(cli *Client, res, cacheSize int) (*Store, error) {
	if cli == nil {
		return nil, errors.New("redis client is required")
	}
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	codec, err := newZoneCodec(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{cli: cli, res: res, codec: codec, now: time.Now}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.cli.Ping(ctx) }

func (s *Store) cells(poly orb.Polygon) ([]string, error) {
	return spatial.CellStrings(poly, s.res)
}

// load fetches zone documents in id order, skipping ids whose document is gone.
func (s *Store) load(ctx context.Context, ids []string) ([]model.Zone, error) {
	if len(ids) == 0 {
		return []model.Zone{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = zoneKey(id)
	}
	raw, err := s.cli.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]model.Zone, 0, len(raw))
	for _, k := range keys {
		b, ok := raw[k]
		if !ok {
			continue
		}
		z, err := s.codec.decode(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out = append(out, z)
	}
	return out, nil
}

func (s *Store) FindContaining(ctx context.Context, pt model.Point) (*model.Zone, error) {
	p := orb.Point{pt.Lng, pt.Lat}
	c, err := spatial.PointCell(p, s.res)
	if err != nil {
		return nil, fmt.Errorf("redis containment: %w", err)
	}
	ids, err := s.cli.Members(ctx, cellKey(s.res, c.String()))
	if err != nil {
		return nil, err
	}
	zs, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	hits := zs[:0]
	for _, z := range zs {
		if geo.Contains(z.Geometry.Polygon, p) {
			hits = append(hits, z)
		}
	}
	z, ok := store.PickContaining(hits)
	if !ok {
		return nil, nil
	}
	return &z, nil
}

func (s *Store) FindOverlapping(ctx context.Context, poly orb.Polygon) ([]model.Zone, error) {
	cells, err := s.cells(poly)
	if err != nil {
		return nil, fmt.Errorf("redis overlap: %w", err)
	}
	keys := make([]string, len(cells))
	for i, c := range cells {
		keys[i] = cellKey(s.res, c)
	}
	start := time.Now()
	ids, err := s.cli.rdb.SUnion(ctx, keys...).Result()
	observability.ObserveStoreOp("sunion", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis SUNION %d cells: %w", len(keys), err)
	}
	zs, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.Zone, 0)
	for _, z := range zs {
		if geo.Overlaps(z.Geometry.Polygon, poly) {
			out = append(out, z)
		}
	}
	store.SortByName(out)
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*model.Zone, error) {
	raw, ok, err := s.cli.Get(ctx, zoneKey(id))
	if err != nil || !ok {
		return nil, err
	}
	z, err := s.codec.decode(raw)
	if err != nil {
		return nil, err
	}
	return &z, nil
}

func (s *Store) ListByWarehouse(ctx context.Context, warehouseID string) ([]model.Zone, error) {
	ids, err := s.cli.Members(ctx, warehouseZonesKey(warehouseID))
	if err != nil {
		return nil, err
	}
	zs, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	store.SortByName(zs)
	return zs, nil
}

func (s *Store) ListActive(ctx context.Context) ([]model.Zone, error) {
	ids, err := s.cli.Members(ctx, allZonesKey())
	if err != nil {
		return nil, err
	}
	zs, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := zs[:0]
	for _, z := range zs {
		if z.Active {
			out = append(out, z)
		}
	}
	store.SortByName(out)
	return out, nil
}

func (s *Store) CountByWarehouse(ctx context.Context, warehouseID string) (int, error) {
	n, err := s.cli.Card(ctx, warehouseZonesKey(warehouseID))
	return int(n), err
}

func (s *Store) Insert(ctx context.Context, z model.Zone) error {
	return s.InsertMany(ctx, []model.Zone{z})
}

// InsertMany writes every zone in one MULTI. Covers are computed up front so
// a bad geometry leaves Redis untouched.
func (s *Store) InsertMany(ctx context.Context, zs []model.Zone) error {
	if len(zs) == 0 {
		return nil
	}
	type prepared struct {
		z     model.Zone
		doc   []byte
		cells []string
	}
	batch := make([]prepared, 0, len(zs))
	keys := make([]string, 0, len(zs))
	seen := make(map[string]struct{}, len(zs))
	for _, z := range zs {
		if z.ID == "" {
			return errors.New("zone id is required")
		}
		if _, dup := seen[z.ID]; dup {
			return fmt.Errorf("zone %s repeated in batch", z.ID)
		}
		seen[z.ID] = struct{}{}
		cells, err := s.cells(z.Geometry.Polygon)
		if err != nil {
			return fmt.Errorf("redis insert %s: %w", z.ID, err)
		}
		doc, err := s.codec.encode(z)
		if err != nil {
			return err
		}
		batch = append(batch, prepared{z: z, doc: doc, cells: cells})
		keys = append(keys, zoneKey(z.ID))
	}

	start := time.Now()
	err := s.cli.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, keys...).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%d of %d zones already exist", n, len(keys))
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, b := range batch {
				p.Set(ctx, zoneKey(b.z.ID), b.doc, 0)
				p.SAdd(ctx, allZonesKey(), b.z.ID)
				if b.z.WarehouseID != "" {
					p.SAdd(ctx, warehouseZonesKey(b.z.WarehouseID), b.z.ID)
				}
				for _, c := range b.cells {
					p.SAdd(ctx, cellKey(s.res, c), b.z.ID)
				}
			}
			return nil
		})
		return err
	}, keys...)
	observability.ObserveStoreOp("insert", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis insert %d zones: %w", len(zs), err)
	}
	return nil
}

func (s *Store) BulkPartialUpdate(ctx context.Context, patches []model.ZonePatch) (int, error) {
	modified := 0
	for _, p := range patches {
		if p.Empty() {
			continue
		}
		ok, err := s.update(ctx, p)
		if err != nil {
			return modified, fmt.Errorf("redis update %s: %w", p.ZoneID, err)
		}
		if ok {
			modified++
		}
	}
	return modified, nil
}

// update applies one patch under WATCH, retrying when the document changes
// between read and commit.
func (s *Store) update(ctx context.Context, p model.ZonePatch) (bool, error) {
	key := zoneKey(p.ZoneID)
	var applied bool
	txf := func(tx *redis.Tx) error {
		applied = false
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		z, err := s.codec.decode(raw)
		if err != nil {
			return err
		}
		oldWarehouse := z.WarehouseID
		var oldCells, newCells []string
		if p.Geometry != nil {
			if oldCells, err = s.cells(z.Geometry.Polygon); err != nil {
				return err
			}
			if newCells, err = s.cells(p.Geometry.Polygon); err != nil {
				return err
			}
		}
		p.Apply(&z, s.now())
		doc, err := s.codec.encode(z)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			if z.WarehouseID != oldWarehouse {
				if oldWarehouse != "" {
					pipe.SRem(ctx, warehouseZonesKey(oldWarehouse), z.ID)
				}
				if z.WarehouseID != "" {
					pipe.SAdd(ctx, warehouseZonesKey(z.WarehouseID), z.ID)
				}
			}
			for _, c := range oldCells {
				pipe.SRem(ctx, cellKey(s.res, c), z.ID)
			}
			for _, c := range newCells {
				pipe.SAdd(ctx, cellKey(s.res, c), z.ID)
			}
			return nil
		})
		if err == nil {
			applied = true
		}
		return err
	}

	start := time.Now()
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.cli.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	observability.ObserveStoreOp("update", err, time.Since(start).Seconds())
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	key := zoneKey(id)
	var deleted bool
	txf := func(tx *redis.Tx) error {
		deleted = false
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		z, err := s.codec.decode(raw)
		if err != nil {
			return err
		}
		cells, err := s.cells(z.Geometry.Polygon)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			s.unlink(ctx, p, z, cells)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}

	start := time.Now()
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.cli.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	observability.ObserveStoreOp("delete", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("redis delete %s: %w", id, err)
	}
	return deleted, nil
}

// DeleteByWarehouse removes every zone listed under the warehouse in one MULTI.
func (s *Store) DeleteByWarehouse(ctx context.Context, warehouseID string) (int, error) {
	zs, err := s.ListByWarehouse(ctx, warehouseID)
	if err != nil {
		return 0, err
	}
	if len(zs) == 0 {
		return 0, nil
	}
	cells := make([][]string, len(zs))
	for i, z := range zs {
		if cells[i], err = s.cells(z.Geometry.Polygon); err != nil {
			return 0, fmt.Errorf("redis delete %s: %w", z.ID, err)
		}
	}

	start := time.Now()
	cmds, err := s.cli.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, z := range zs {
			s.unlink(ctx, p, z, cells[i])
		}
		return nil
	})
	observability.ObserveStoreOp("delete_many", err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("redis delete warehouse %s zones: %w", warehouseID, err)
	}

	n := 0
	for _, c := range cmds {
		if d, ok := c.(*redis.IntCmd); ok && c.Name() == "del" && d.Val() > 0 {
			n++
		}
	}
	return n, nil
}

func (s *Store) unlink(ctx context.Context, p redis.Pipeliner, z model.Zone, cells []string) {
	p.Del(ctx, zoneKey(z.ID))
	p.SRem(ctx, allZonesKey(), z.ID)
	if z.WarehouseID != "" {
		p.SRem(ctx, warehouseZonesKey(z.WarehouseID), z.ID)
	}
	for _, c := range cells {
		p.SRem(ctx, cellKey(s.res, c), z.ID)
	}
}

// PutWarehouse inserts or replaces a warehouse record.
func (s *Store) PutWarehouse(ctx context.Context, w model.Warehouse) error {
	if w.ID == "" {
		return errors.New("warehouse id is required")
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}
	doc, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode warehouse %s: %w", w.ID, err)
	}
	start := time.Now()
	_, err = s.cli.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, warehouseKey(w.ID), doc, 0)
		p.ZAdd(ctx, warehousesKey(), redis.Z{Score: float64(w.CreatedAt.UnixMilli()), Member: w.ID})
		return nil
	})
	observability.ObserveStoreOp("put_warehouse", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis put warehouse %s: %w", w.ID, err)
	}
	return nil
}

func (s *Store) GetWarehouse(ctx context.Context, id string) (*model.Warehouse, error) {
	raw, ok, err := s.cli.Get(ctx, warehouseKey(id))
	if err != nil || !ok {
		return nil, err
	}
	var w model.Warehouse
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode warehouse %s: %w", id, err)
	}
	return &w, nil
}

func (s *Store) WarehouseExists(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	n, err := s.cli.rdb.Exists(ctx, warehouseKey(id)).Result()
	observability.ObserveStoreOp("exists", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("redis EXISTS warehouse %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) FindByRegionActive(ctx context.Context, region string) (*model.Warehouse, error) {
	ws, err := s.warehouses(ctx)
	if err != nil {
		return nil, err
	}
	return store.EarliestActive(ws, func(w model.Warehouse) bool { return w.Region == region }), nil
}

func (s *Store) FindDefault(ctx context.Context) (*model.Warehouse, error) {
	ws, err := s.warehouses(ctx)
	if err != nil {
		return nil, err
	}
	return store.DefaultOf(ws), nil
}

func (s *Store) warehouses(ctx context.Context) ([]model.Warehouse, error) {
	start := time.Now()
	ids, err := s.cli.rdb.ZRange(ctx, warehousesKey(), 0, -1).Result()
	observability.ObserveStoreOp("zrange", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis ZRANGE warehouses: %w", err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = warehouseKey(id)
	}
	raw, err := s.cli.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]model.Warehouse, 0, len(raw))
	for _, k := range keys {
		b, ok := raw[k]
		if !ok {
			continue
		}
		var w model.Warehouse
		if err := json.Unmarshal(b, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", k, err)
		}
		out = append(out, w)
	}
	return out, nil
}
