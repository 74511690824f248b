package api

import (
	"encoding/json"
	"net/http"

	"github.com/mohammed-shakir/zonegrid/internal/resolver"
)

func (h *Handler) resolveQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := resolver.ParseRequest(q.Get("lat"), q.Get("lng"), q.Get("region"), q.Get("source"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.resolve(w, r, req)
}

// lat and lng may arrive as JSON numbers or numeric strings
type resolveBody struct {
	Lat    json.Number `json:"lat"`
	Lng    json.Number `json:"lng"`
	Region string      `json:"region"`
	Source string      `json:"source"`
}

func (h *Handler) resolveBody(w http.ResponseWriter, r *http.Request) {
	var b resolveBody
	if err := decode(r, &b, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := resolver.ParseRequest(b.Lat.String(), b.Lng.String(), b.Region, b.Source)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.resolve(w, r, req)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, req resolver.Request) {
	v, err := h.resolver.Resolve(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) options(w http.ResponseWriter, r *http.Request) {
	o, err := h.resolver.ListOptions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
