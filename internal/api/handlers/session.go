package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/eargollo/shelfscan/internal/scan"
	"github.com/eargollo/shelfscan/internal/session"
)

// SessionHandler handles the scan session control endpoints.
type SessionHandler struct {
	Manager Sessions
}

// Start handles POST /api/session.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Manager.Start("api")
	if err != nil {
		switch {
		case errors.Is(err, session.ErrAlreadyActive):
			writeError(w, http.StatusConflict, "SESSION_ACTIVE", "A scan session is already active")
		case errors.Is(err, session.ErrAlreadyDetected):
			writeError(w, http.StatusConflict, "SESSION_DETECTED", "A code was already detected; reset before scanning again")
		case errors.Is(err, session.ErrNeedsReset):
			writeError(w, http.StatusConflict, "SESSION_ERROR", "The last session failed; reset before scanning again")
		case errors.Is(err, session.ErrDisposed), errors.Is(err, scan.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "The server is shutting down")
		default:
			slog.Error("session: start", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start scan session")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// Pause handles POST /api/session/pause.
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Manager.Pause()
	if err != nil {
		if errors.Is(err, session.ErrNotActive) {
			writeError(w, http.StatusNotFound, "NO_ACTIVE_SESSION", "No scan session is active")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Reset handles POST /api/session/reset.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Manager.Reset())
}
