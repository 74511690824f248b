// Package api exposes the zone services over HTTP with chi.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/grid"
	"github.com/mohammed-shakir/zonegrid/internal/logger"
	"github.com/mohammed-shakir/zonegrid/internal/resolver"
	"github.com/mohammed-shakir/zonegrid/internal/zones"
)

type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.Verdict, error)
	ListOptions(ctx context.Context) (*resolver.Options, error)
}

type Grids interface {
	Generate(ctx context.Context, warehouseID string, p grid.Params) (*grid.GenerateResult, error)
	Get(ctx context.Context, warehouseID string) (*grid.GridResult, error)
	Update(ctx context.Context, warehouseID string, edits []grid.Edit) (*grid.UpdateResult, error)
}

type Zones interface {
	Get(ctx context.Context, id string) (*model.Zone, error)
	Create(ctx context.Context, in zones.Input) (*model.Zone, error)
	Update(ctx context.Context, id string, p zones.Patch) (*model.Zone, error)
	SetActive(ctx context.Context, id string, active bool) (*model.Zone, error)
	Delete(ctx context.Context, id string) error
}

// Warehouses is the write side of the warehouse directory.
type Warehouses interface {
	GetWarehouse(ctx context.Context, id string) (*model.Warehouse, error)
	PutWarehouse(ctx context.Context, w model.Warehouse) error
}

type Deps struct {
	Resolver   Resolver
	Grids      Grids
	Zones      Zones
	Warehouses Warehouses
	Logger     *slog.Logger
}

type Handler struct {
	resolver   Resolver
	grids      Grids
	zones      Zones
	warehouses Warehouses
	logger     *slog.Logger
}

func New(d Deps) *Handler {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		resolver:   d.Resolver,
		grids:      d.Grids,
		zones:      d.Zones,
		warehouses: d.Warehouses,
		logger:     l,
	}
}

// Routes returns the router mounted under /api/v1.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/locations", func(r chi.Router) {
		r.Get("/resolve", h.resolveQuery)
		r.Post("/resolve", h.resolveBody)
		r.Get("/options", h.options)
	})

	r.Route("/warehouses/{warehouseID}", func(r chi.Router) {
		r.Use(tagParam("warehouseID", logger.WithWarehouse))
		r.Get("/", h.getWarehouse)
		r.Put("/", h.putWarehouse)
		r.Get("/grid", h.getGrid)
		r.Post("/grid", h.generateGrid)
		r.Patch("/grid", h.updateGrid)
	})

	r.Route("/zones", func(r chi.Router) {
		r.Post("/", h.createZone)
		r.Route("/{zoneID}", func(r chi.Router) {
			r.Use(tagParam("zoneID", logger.WithZone))
			r.Get("/", h.getZone)
			r.Patch("/", h.updateZone)
			r.Delete("/", h.deleteZone)
			r.Patch("/active", h.setZoneActive)
		})
	})

	return r
}

// tagParam copies a URL parameter into the request's log fields.
func tagParam(name string, tag func(context.Context, string) context.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(tag(r.Context(), chi.URLParam(r, name))))
		})
	}
}
