package handlers

import (
	"net/http"
	"time"

	"github.com/eargollo/shelfscan/internal/scan"
)

// Schedule is the part of *scheduler.Scheduler the status endpoint reads.
type Schedule interface {
	Jobs() []string
	CronExpr(name string) string
	NextRunAt(name string) *time.Time
}

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	Manager Sessions
	Sched   Schedule
	// PageAttached reports whether a browser capture page is connected.
	// Nil when frames do not come from a browser.
	PageAttached func() bool
	Version      string
}

type statusResponse struct {
	Session      scan.Snapshot `json:"session"`
	Schedule     []jobInfo     `json:"schedule"`
	PageAttached *bool         `json:"page_attached,omitempty"`
	Version      string        `json:"version"`
}

type jobInfo struct {
	Name      string     `json:"name"`
	Cron      string     `json:"cron"`
	NextRunAt *time.Time `json:"next_run_at"`
}

// ServeHTTP returns the session state and maintenance schedule as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Session:  h.Manager.State(),
		Schedule: []jobInfo{},
		Version:  h.Version,
	}
	if h.Sched != nil {
		for _, name := range h.Sched.Jobs() {
			resp.Schedule = append(resp.Schedule, jobInfo{
				Name:      name,
				Cron:      h.Sched.CronExpr(name),
				NextRunAt: h.Sched.NextRunAt(name),
			})
		}
	}
	if h.PageAttached != nil {
		attached := h.PageAttached()
		resp.PageAttached = &attached
	}
	writeJSON(w, http.StatusOK, resp)
}
