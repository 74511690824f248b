// Package postgres reads the warehouse directory from a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/core/observability"
	"github.com/mohammed-shakir/zonegrid/internal/store"
)

const Schema = `
CREATE TABLE IF NOT EXISTS warehouses (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL,
	code                   TEXT NOT NULL DEFAULT '',
	region                 TEXT NOT NULL DEFAULT '',
	active                 BOOLEAN NOT NULL DEFAULT TRUE,
	is_default             BOOLEAN NOT NULL DEFAULT FALSE,
	lat                    DOUBLE PRECISION,
	lng                    DOUBLE PRECISION,
	default_shipping_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	boundary               JSONB,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS warehouses_region_active_idx ON warehouses (region, active, created_at);
`

const columns = `id, name, code, region, active, is_default, lat, lng, default_shipping_price, boundary, created_at`

type Directory struct {
	db *sql.DB
}

var _ store.WarehouseDirectory = (*Directory)(nil)

// Open connects with the lib/pq driver and pings the server.
func Open(ctx context.Context, dsn string) (*Directory, error) {
	if dsn == "" {
		return nil, errors.New("warehouse DSN is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", classify(err))
	}
	return &Directory{db: db}, nil
}

func New(db *sql.DB) *Directory { return &Directory{db: db} }

func (d *Directory) Close() error { return d.db.Close() }

func (d *Directory) Ping(ctx context.Context) error {
	return classify(d.db.PingContext(ctx))
}

func (d *Directory) EnsureSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create warehouses table: %w", classify(err))
	}
	return nil
}

// PutWarehouse upserts a warehouse row.
func (d *Directory) PutWarehouse(ctx context.Context, w model.Warehouse) error {
	if w.ID == "" {
		return errors.New("warehouse id is required")
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	var lat, lng sql.NullFloat64
	if w.Location != nil {
		lat = sql.NullFloat64{Float64: w.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: w.Location.Lng, Valid: true}
	}
	var boundary sql.NullString
	if w.Boundary != nil {
		b, err := json.Marshal(w.Boundary)
		if err != nil {
			return fmt.Errorf("encode boundary %s: %w", w.ID, err)
		}
		boundary = sql.NullString{String: string(b), Valid: true}
	}

	start := time.Now()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO warehouses (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			code = EXCLUDED.code,
			region = EXCLUDED.region,
			active = EXCLUDED.active,
			is_default = EXCLUDED.is_default,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			default_shipping_price = EXCLUDED.default_shipping_price,
			boundary = EXCLUDED.boundary
	`, w.ID, w.Name, w.Code, w.Region, w.Active, w.IsDefault, lat, lng, w.DefaultShippingPrice, boundary, w.CreatedAt)
	observability.ObserveStoreOp("pg_put_warehouse", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("upsert warehouse %s: %w", w.ID, classify(err))
	}
	return nil
}

func (d *Directory) GetWarehouse(ctx context.Context, id string) (*model.Warehouse, error) {
	return d.one(ctx, "pg_get_warehouse", `SELECT `+columns+` FROM warehouses WHERE id = $1`, id)
}

func (d *Directory) WarehouseExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	start := time.Now()
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM warehouses WHERE id = $1)`, id).Scan(&ok)
	observability.ObserveStoreOp("pg_warehouse_exists", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("warehouse exists %s: %w", id, classify(err))
	}
	return ok, nil
}

func (d *Directory) FindByRegionActive(ctx context.Context, region string) (*model.Warehouse, error) {
	return d.one(ctx, "pg_find_region", `
		SELECT `+columns+` FROM warehouses
		WHERE region = $1 AND active
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, region)
}

func (d *Directory) FindDefault(ctx context.Context) (*model.Warehouse, error) {
	return d.one(ctx, "pg_find_default", `
		SELECT `+columns+` FROM warehouses
		WHERE active
		ORDER BY is_default DESC, created_at ASC, id ASC
		LIMIT 1
	`)
}

func (d *Directory) one(ctx context.Context, op, query string, args ...any) (*model.Warehouse, error) {
	start := time.Now()
	w, err := scanWarehouse(d.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		observability.ObserveStoreOp(op, nil, time.Since(start).Seconds())
		return nil, nil
	}
	observability.ObserveStoreOp(op, err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return w, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWarehouse(s scanner) (*model.Warehouse, error) {
	var (
		w        model.Warehouse
		lat, lng sql.NullFloat64
		boundary sql.NullString
	)
	err := s.Scan(
		&w.ID,
		&w.Name,
		&w.Code,
		&w.Region,
		&w.Active,
		&w.IsDefault,
		&lat,
		&lng,
		&w.DefaultShippingPrice,
		&boundary,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		w.Location = &model.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if boundary.Valid && boundary.String != "" {
		var g model.Geometry
		if err := json.Unmarshal([]byte(boundary.String), &g); err != nil {
			return nil, fmt.Errorf("decode boundary %s: %w", w.ID, err)
		}
		w.Boundary = &g
	}
	return &w, nil
}

// classify marks connection failures (SQLSTATE class 08) and admin
// shutdowns (57P01) as retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Class() == "08" || pqErr.Code == "57P01" {
			return &apperr.Error{Kind: apperr.KindUnavailable, Code: "store_unavailable", Msg: pqErr.Code.Name(), Err: err}
		}
		return err
	}
	if errors.Is(err, sql.ErrConnDone) {
		return &apperr.Error{Kind: apperr.KindUnavailable, Code: "store_unavailable", Msg: "connection closed", Err: err}
	}
	return err
}
