package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mohammed-shakir/zonegrid/internal/core/apperr"
	"github.com/mohammed-shakir/zonegrid/internal/grid"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	ModifiedCount *int   `json:"modifiedCount,omitempty"`
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	body := errorBody{Code: apperr.CodeOf(err)}

	switch kind {
	case apperr.KindInternal:
		body.Error = "internal server error"
	case apperr.KindConfiguration:
		body.Error = "service is misconfigured"
	default:
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Msg != "" {
			body.Error = ae.Msg
		} else {
			body.Error = err.Error()
		}
	}

	var be *grid.BulkError
	if errors.As(err, &be) {
		n := be.Modified
		body.ModifiedCount = &n
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "code", body.Code, "err", err)
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into v. An empty body is allowed when optional.
func decode(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("invalid_json", "request body is not valid JSON: "+err.Error())
	}
	return nil
}
