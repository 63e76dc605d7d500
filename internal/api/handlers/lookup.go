package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eargollo/shelfscan/internal/lookup"
)

// LookupHandler handles GET /api/lookup/{code}.
type LookupHandler struct {
	Manager Sessions
}

type lookupResponse struct {
	Code   string         `json:"code"`
	Record *lookup.Record `json:"record"`
	Fields []lookup.Field `json:"fields"`
}

func (h *LookupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	rec, err := h.Manager.Lookup(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, lookup.ErrEmptyCode):
			writeError(w, http.StatusBadRequest, "INVALID_CODE", "Code must not be empty")
		case errors.Is(err, lookup.ErrNoRecord):
			writeError(w, http.StatusNotFound, "NO_RECORD", "No product found for this code")
		case errors.Is(err, lookup.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "LOOKUP_NOT_CONFIGURED", "Inventory lookup is not configured")
		default:
			slog.Warn("lookup", "code", code, "error", err)
			writeError(w, http.StatusBadGateway, "LOOKUP_FAILED", "Failed to fetch product details. Please try again.")
		}
		return
	}
	writeJSON(w, http.StatusOK, lookupResponse{Code: code, Record: rec, Fields: lookup.DisplayFields(rec)})
}
