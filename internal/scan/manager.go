// Package scan ties a scan session coordinator to history, inventory lookup
// and event push.
package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eargollo/shelfscan/internal/camera"
	"github.com/eargollo/shelfscan/internal/decoder"
	"github.com/eargollo/shelfscan/internal/events"
	"github.com/eargollo/shelfscan/internal/lookup"
	"github.com/eargollo/shelfscan/internal/metrics"
	"github.com/eargollo/shelfscan/internal/session"
)

// Session row statuses.
const (
	StatusScanning    = "scanning"
	StatusDetected    = "detected"
	StatusStopped     = "stopped"
	StatusError       = "error"
	StatusInterrupted = "interrupted"
)

// Lookup outcomes stored on a detection.
const (
	LookupPending   = "pending"
	LookupFound     = "found"
	LookupNoRecord  = "no_record"
	LookupError     = "error"
	LookupCancelled = "cancelled"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("scan manager closed")

// Publisher receives session events. *events.Hub implements it.
type Publisher interface {
	Publish(typ string, data any)
}

// Config tunes a Manager.
type Config struct {
	Session session.Config
	// LookupDelay is the pause between a detection and its lookup.
	LookupDelay time.Duration
	DecoderName string
}

// LookupResult is the outcome of the lookup for one detection.
type LookupResult struct {
	DetectionID int64          `json:"detection_id"`
	SessionID   string         `json:"session_id"`
	Code        string         `json:"code"`
	Status      string         `json:"status"`
	Record      *lookup.Record `json:"record,omitempty"`
	Fields      []lookup.Field `json:"fields,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Snapshot is the manager's state for status endpoints.
type Snapshot struct {
	session.State
	Camera     string        `json:"camera"`
	Decoder    string        `json:"decoder"`
	Error      *ErrorInfo    `json:"error,omitempty"`
	LastLookup *LookupResult `json:"last_lookup,omitempty"`
}

// ErrorInfo is a camera failure as shown to the user.
type ErrorInfo struct {
	Cause   string `json:"cause"`
	Message string `json:"message"`
}

func errorInfo(ae *camera.AcquireError) *ErrorInfo {
	if ae == nil {
		return nil
	}
	return &ErrorInfo{Cause: ae.Cause.String(), Message: ae.Cause.Message()}
}

// Manager owns the coordinator and everything that happens around an
// accepted detection. It is safe for concurrent use.
type Manager struct {
	db     *sql.DB
	coord  *session.Coordinator
	lookup lookup.Lookuper
	pub    Publisher
	cfg    Config
	camera string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	lookupCancel context.CancelFunc
	last         *LookupResult
	closed       bool
}

// NewManager creates a Manager. dec is owned by the manager and closed by
// Close. pub may be nil.
func NewManager(db *sql.DB, dev camera.Device, dec decoder.Decoder, lk lookup.Lookuper, pub Publisher, cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		db:     db,
		lookup: lk,
		pub:    pub,
		cfg:    cfg,
		camera: dev.Name(),
		ctx:    ctx,
		cancel: cancel,
	}
	m.coord = session.New(dev, dec, cfg.Session, session.Options{
		OnDetect: m.handleDetection,
		OnError:  m.handleFailure,
	})
	return m
}

// Start begins a scan session and records it. Errors from the coordinator
// (session.ErrAlreadyActive and friends) are returned unchanged.
func (m *Manager) Start(triggeredBy string) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	id, err := m.coord.Start()
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	if err := insertSession(m.db, id, time.Now(), triggeredBy, m.camera, m.cfg.DecoderName); err != nil {
		m.coord.Reset()
		m.mu.Unlock()
		return Snapshot{}, fmt.Errorf("create session record: %w", err)
	}
	m.last = nil
	m.mu.Unlock()

	snap := m.State()
	m.publish(events.TypeSession, snap)
	return snap, nil
}

// Pause stops the active session, keeping its seen codes.
func (m *Manager) Pause() (Snapshot, error) {
	m.mu.Lock()
	before := m.coord.State()
	if err := m.coord.Stop(); err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	m.finishSession(before.SessionID, StatusStopped, nil)
	m.mu.Unlock()

	snap := m.State()
	m.publish(events.TypeSession, snap)
	return snap, nil
}

// Reset abandons any session and pending lookup and returns to idle.
func (m *Manager) Reset() Snapshot {
	m.mu.Lock()
	before := m.coord.State()
	if m.lookupCancel != nil {
		m.lookupCancel()
		m.lookupCancel = nil
	}
	m.coord.Reset()
	if before.Status.Active() {
		m.finishSession(before.SessionID, StatusStopped, nil)
	}
	m.last = nil
	m.mu.Unlock()

	snap := m.State()
	m.publish(events.TypeSession, snap)
	return snap
}

// Close stops everything and waits for pending lookups. The manager cannot
// be restarted.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	before := m.coord.State()
	m.mu.Unlock()

	m.cancel()
	m.coord.Dispose()
	m.wg.Wait()

	if before.Status.Active() {
		m.mu.Lock()
		m.finishSession(before.SessionID, StatusStopped, nil)
		m.mu.Unlock()
	}
}

// State returns a snapshot of the current session.
func (m *Manager) State() Snapshot {
	st := m.coord.State()
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		State:   st,
		Camera:  m.camera,
		Decoder: m.cfg.DecoderName,
		Error:   errorInfo(st.Err),
	}
	if m.last != nil {
		lr := *m.last
		snap.LastLookup = &lr
	}
	return snap
}

// Lookup queries the inventory directly, outside any session.
func (m *Manager) Lookup(ctx context.Context, code string) (*lookup.Record, error) {
	rec, err := m.lookup.Lookup(ctx, code)
	metrics.LookupsTotal.WithLabelValues(outcome(err)).Inc()
	return rec, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return LookupFound
	case errors.Is(err, lookup.ErrNoRecord):
		return LookupNoRecord
	case errors.Is(err, context.Canceled):
		return LookupCancelled
	default:
		return LookupError
	}
}

// finishSession closes the session row. Callers hold m.mu.
func (m *Manager) finishSession(id, status string, ae *camera.AcquireError) {
	if id == "" {
		return
	}
	counters := m.coord.State().Counters
	if err := updateSessionFinished(m.db, id, status, time.Now(), ae, counters); err != nil {
		slog.Error("update session record", "session", id, "error", err)
	}
}

func (m *Manager) handleDetection(ev session.DetectionEvent) {
	m.mu.Lock()
	st := m.coord.State()
	if m.closed || st.Status != session.Detected || st.SessionID != ev.SessionID {
		// Reset or Close won the race with the callback.
		m.mu.Unlock()
		return
	}
	detID, err := insertDetection(m.db, ev)
	if err != nil {
		m.mu.Unlock()
		slog.Error("record detection", "session", ev.SessionID, "code", ev.Code, "error", err)
		return
	}
	m.finishSession(ev.SessionID, StatusDetected, nil)

	ctx, cancel := context.WithCancel(m.ctx)
	m.lookupCancel = cancel
	m.last = &LookupResult{DetectionID: detID, SessionID: ev.SessionID, Code: ev.Code, Status: LookupPending}
	m.wg.Add(1)
	m.mu.Unlock()

	m.publish(events.TypeDetected, Detection{
		ID:           detID,
		SessionID:    ev.SessionID,
		Code:         ev.Code,
		Format:       ev.Format,
		DetectedAt:   ev.Timestamp,
		LookupStatus: LookupPending,
	})

	go func() {
		defer m.wg.Done()
		defer cancel()
		m.resolve(ctx, detID, ev)
	}()
}

// resolve waits out the lookup delay and looks the code up exactly once.
func (m *Manager) resolve(ctx context.Context, detID int64, ev session.DetectionEvent) {
	res := LookupResult{DetectionID: detID, SessionID: ev.SessionID, Code: ev.Code}

	var (
		rec *lookup.Record
		err error
	)
	if m.cfg.LookupDelay > 0 {
		t := time.NewTimer(m.cfg.LookupDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
		}
	}
	if err == nil {
		rec, err = m.Lookup(ctx, ev.Code)
	}

	res.Status = outcome(err)
	switch res.Status {
	case LookupFound:
		res.Record = rec
		res.Fields = lookup.DisplayFields(rec)
	case LookupError:
		res.Error = err.Error()
		slog.Warn("lookup failed", "session", ev.SessionID, "code", ev.Code, "error", err)
	case LookupCancelled:
		slog.Debug("lookup cancelled", "session", ev.SessionID, "code", ev.Code)
	}

	if err := updateDetectionLookup(m.db, detID, res, time.Now()); err != nil {
		slog.Error("record lookup result", "detection", detID, "error", err)
	}

	if res.Status == LookupCancelled {
		return
	}
	m.mu.Lock()
	if m.last != nil && m.last.DetectionID == detID {
		lr := res
		m.last = &lr
	}
	m.mu.Unlock()
	m.publish(events.TypeLookup, res)
}

func (m *Manager) handleFailure(f session.Failure) {
	m.mu.Lock()
	st := m.coord.State()
	if st.Status != session.Error || st.SessionID != f.SessionID {
		m.mu.Unlock()
		return
	}
	m.finishSession(f.SessionID, StatusError, f.Err)
	m.mu.Unlock()

	m.publish(events.TypeError, struct {
		SessionID string `json:"session_id"`
		*ErrorInfo
	}{f.SessionID, errorInfo(f.Err)})
}

func (m *Manager) publish(typ string, data any) {
	if m.pub != nil {
		m.pub.Publish(typ, data)
	}
}

// MarkStaleSessions marks sessions left 'scanning' by a previous process as
// 'interrupted'. Call once at startup.
func MarkStaleSessions(db *sql.DB) error {
	res, err := db.Exec(`
		UPDATE scan_sessions
		SET status = ?, finished_at = ?
		WHERE status = ?`,
		StatusInterrupted, time.Now().UnixMilli(), StatusScanning)
	if err != nil {
		return fmt.Errorf("mark stale sessions: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("marked stale sessions as interrupted", "count", n)
	}
	return nil
}
