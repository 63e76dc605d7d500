package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eargollo/shelfscan/internal/scan"
)

// HistoryHandler serves past sessions and detections.
type HistoryHandler struct {
	DB *sql.DB
}

// Sessions handles GET /api/sessions, newest first.
func (h *HistoryHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	items, total, err := scan.ListSessions(r.Context(), h.DB, limit, offset)
	if err != nil {
		slog.Error("sessions list", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[scan.SessionRecord]{Items: items, Total: total, Limit: limit, Offset: offset})
}

// Detections handles GET /api/detections?session_id=&code=, newest first.
func (h *HistoryHandler) Detections(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	q := r.URL.Query()
	f := scan.DetectionFilter{SessionID: q.Get("session_id"), Code: q.Get("code")}

	items, total, err := scan.ListDetections(r.Context(), h.DB, f, limit, offset)
	if err != nil {
		slog.Error("detections list", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[scan.Detection]{Items: items, Total: total, Limit: limit, Offset: offset})
}

// Detection handles GET /api/detections/{id}.
func (h *HistoryHandler) Detection(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Detection id must be a positive integer")
		return
	}
	d, err := scan.GetDetection(r.Context(), h.DB, id)
	if err != nil {
		if errors.Is(err, scan.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Detection not found")
			return
		}
		slog.Error("detection get", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}
