package api

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eargollo/shelfscan/internal/api/handlers"
	"github.com/eargollo/shelfscan/internal/camera"
	"github.com/eargollo/shelfscan/internal/config"
	"github.com/eargollo/shelfscan/internal/events"
	"github.com/eargollo/shelfscan/internal/scheduler"
)

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr    string
	srv     *http.Server
	handler http.Handler
}

// New wires all routes and returns a Server ready to Run. browser is nil
// when frames come from somewhere other than a browser page; staticFS is nil
// when the capture page is not served.
func New(
	addr string,
	db *sql.DB,
	cfg *config.Config,
	mgr handlers.Sessions,
	hub *events.Hub,
	browser *camera.Browser,
	sched *scheduler.Scheduler,
	version string,
	staticFS fs.FS,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	statusH := &handlers.StatusHandler{Manager: mgr, Version: version}
	if sched != nil {
		statusH.Sched = sched
	}
	if browser != nil {
		statusH.PageAttached = browser.Attached
	}
	sessionH := &handlers.SessionHandler{Manager: mgr}
	historyH := &handlers.HistoryHandler{DB: db}
	lookupH := &handlers.LookupHandler{Manager: mgr}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusH.ServeHTTP)

		r.Post("/session", sessionH.Start)
		r.Post("/session/pause", sessionH.Pause)
		r.Post("/session/reset", sessionH.Reset)

		r.Get("/sessions", historyH.Sessions)
		r.Get("/detections", historyH.Detections)
		r.Get("/detections/{id}", historyH.Detection)

		r.Get("/lookup/{code}", lookupH.ServeHTTP)

		if hub != nil {
			r.Get("/events", hub.ServeHTTP)
		}
		if browser != nil {
			r.Get("/camera/feed", browser.ServeHTTP)
		}
	})

	if staticFS != nil {
		r.Handle("/*", http.FileServer(http.FS(staticFS)))
	}

	return &Server{
		addr:    addr,
		handler: r,
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// OriginChecker returns a websocket origin check for the allowed origins.
// "*" accepts any origin; requests without an Origin header are accepted.
func OriginChecker(allowed []string) func(*http.Request) bool {
	anyOrigin := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			anyOrigin = true
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || anyOrigin {
			return true
		}
		if set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
