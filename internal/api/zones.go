package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/zones"
)

func (h *Handler) createZone(w http.ResponseWriter, r *http.Request) {
	var in zones.Input
	if err := decode(r, &in, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	z, err := h.zones.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, z)
}

func (h *Handler) getZone(w http.ResponseWriter, r *http.Request) {
	z, err := h.zones.Get(r.Context(), chi.URLParam(r, "zoneID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (h *Handler) updateZone(w http.ResponseWriter, r *http.Request) {
	var p zones.Patch
	if err := decode(r, &p, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	z, err := h.zones.Update(r.Context(), chi.URLParam(r, "zoneID"), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (h *Handler) setZoneActive(w http.ResponseWriter, r *http.Request) {
	var b struct {
		Active *bool `json:"active"`
	}
	if err := decode(r, &b, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if b.Active == nil {
		h.writeError(w, r, apperr.Validation("active_required", "active must be a boolean"))
		return
	}
	z, err := h.zones.SetActive(r.Context(), chi.URLParam(r, "zoneID"), *b.Active)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (h *Handler) deleteZone(w http.ResponseWriter, r *http.Request) {
	if err := h.zones.Delete(r.Context(), chi.URLParam(r, "zoneID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
