package api

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/core/model"
	"github.com/mohammed-shakir/zonegrid/internal/geo"
	"github.com/mohammed-shakir/zonegrid/internal/region"
)

func (h *Handler) getWarehouse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "warehouseID")
	wh, err := h.warehouses.GetWarehouse(r.Context(), id)
	if err != nil {
		h.writeError(w, r, apperr.Store("load warehouse", err))
		return
	}
	if wh == nil {
		h.writeError(w, r, apperr.NotFound("warehouse_not_found", "warehouse "+id+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

// putWarehouse creates or replaces a warehouse. Region accepts a code or any
// free-text alias and is stored normalized.
func (h *Handler) putWarehouse(w http.ResponseWriter, r *http.Request) {
	var wh model.Warehouse
	if err := decode(r, &wh, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	wh.ID = chi.URLParam(r, "warehouseID")
	if err := normalizeWarehouse(&wh); err != nil {
		h.writeError(w, r, err)
		return
	}

	prev, err := h.warehouses.GetWarehouse(r.Context(), wh.ID)
	if err != nil {
		h.writeError(w, r, apperr.Store("load warehouse", err))
		return
	}
	status := http.StatusCreated
	if prev != nil {
		status = http.StatusOK
		if wh.CreatedAt.IsZero() {
			wh.CreatedAt = prev.CreatedAt
		}
	}
	if wh.CreatedAt.IsZero() {
		wh.CreatedAt = time.Now().UTC()
	}
	if err := h.warehouses.PutWarehouse(r.Context(), wh); err != nil {
		h.writeError(w, r, apperr.Store("save warehouse", err))
		return
	}
	writeJSON(w, status, wh)
}

func normalizeWarehouse(wh *model.Warehouse) error {
	wh.Name = strings.TrimSpace(wh.Name)
	if wh.Name == "" {
		return apperr.Validation("name_required", "warehouse name is required")
	}
	wh.Code = strings.TrimSpace(wh.Code)

	code := region.Code(strings.ToUpper(strings.TrimSpace(wh.Region)))
	if !region.Known(code) {
		c, ok := region.Normalize(wh.Region)
		if !ok {
			return apperr.Validation("invalid_region", "unknown region "+wh.Region)
		}
		code = c
	}
	wh.Region = string(code)

	if p := wh.DefaultShippingPrice; p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return apperr.Validation("invalid_shipping_price", "defaultShippingPrice must be a non-negative number")
	}
	if wh.Location != nil && !geo.ValidCoordinate(wh.Location.Lat, wh.Location.Lng) {
		return apperr.Validation("invalid_coordinates", "location is out of range")
	}
	if wh.Boundary != nil {
		if err := geo.ValidatePolygon(wh.Boundary.Polygon); err != nil {
			return apperr.Validation("invalid_geometry", err.Error())
		}
	}
	return nil
}
