package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/grid"
)

func (h *Handler) getGrid(w http.ResponseWriter, r *http.Request) {
	res, err := h.grids.Get(r.Context(), chi.URLParam(r, "warehouseID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) generateGrid(w http.ResponseWriter, r *http.Request) {
	p := grid.DefaultParams()
	if err := decode(r, &p, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.grids.Generate(r.Context(), chi.URLParam(r, "warehouseID"), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// updateGrid accepts {"edits":[...]} or a bare array of edits.
func (h *Handler) updateGrid(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, apperr.Validation("invalid_json", "could not read request body"))
		return
	}
	edits, err := parseEdits(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.grids.Update(r.Context(), chi.URLParam(r, "warehouseID"), edits)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseEdits(raw []byte) ([]grid.Edit, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, apperr.Validation("empty_edits", "edits must be a non-empty array")
	}
	var edits []grid.Edit
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &edits); err != nil {
			return nil, apperr.Validation("invalid_json", "edits: "+err.Error())
		}
		return edits, nil
	}
	var env struct {
		Edits []grid.Edit `json:"edits"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Validation("invalid_json", "edits: "+err.Error())
	}
	return env.Edits, nil
}
