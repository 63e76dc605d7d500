package scan

import (
	"context"
	"database/sql"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eargollo/shelfscan/internal/camera"
	internaldb "github.com/eargollo/shelfscan/internal/db"
	"github.com/eargollo/shelfscan/internal/decoder"
	"github.com/eargollo/shelfscan/internal/lookup"
	"github.com/eargollo/shelfscan/internal/session"
)

// mustOpenDB opens a migrated database in a temp directory.
func mustOpenDB(tb testing.TB) *sql.DB {
	tb.Helper()
	dbPath := filepath.Join(tb.TempDir(), "test.db")
	db, err := internaldb.Open(dbPath)
	if err != nil {
		tb.Fatalf("open test DB: %v", err)
	}
	if err := internaldb.RunMigrations(db); err != nil {
		db.Close()
		tb.Fatalf("run migrations: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return db
}

type stubTrack struct{ stopped atomic.Bool }

func (t *stubTrack) Kind() string { return "video" }
func (t *stubTrack) Stop()        { t.stopped.Store(true) }

type stubStream struct{ track stubTrack }

func (s *stubStream) Tracks() []camera.Track { return []camera.Track{&s.track} }

func (s *stubStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return image.NewGray(image.Rect(0, 0, 2, 2)), nil
}

// stubDevice grants a fresh stream on every Acquire, or fails with err.
type stubDevice struct {
	err error
}

func (d *stubDevice) Name() string { return "stub" }

func (d *stubDevice) Acquire(context.Context, camera.Constraints) (camera.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &stubStream{}, nil
}

// codeDecoder reports code on every frame once armed, NotFound before.
type codeDecoder struct {
	mu   sync.Mutex
	code string
}

func (d *codeDecoder) arm(code string) {
	d.mu.Lock()
	d.code = code
	d.mu.Unlock()
}

func (d *codeDecoder) Decode(context.Context, image.Image) decoder.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.code == "" {
		return decoder.Result{Kind: decoder.NotFound}
	}
	return decoder.Result{Kind: decoder.Found, Code: d.code, Format: "EAN_13"}
}

func (d *codeDecoder) Close() error { return nil }

// countingLookup answers from records and counts calls.
type countingLookup struct {
	records map[string]*lookup.Record
	err     error
	calls   atomic.Int32
}

func (l *countingLookup) Lookup(ctx context.Context, code string) (*lookup.Record, error) {
	l.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.err != nil {
		return nil, l.err
	}
	if r, ok := l.records[code]; ok {
		return r, nil
	}
	return nil, lookup.ErrNoRecord
}

type published struct {
	typ  string
	data any
}

// recorder is a Publisher that keeps every event.
type recorder struct {
	ch chan published
}

func newRecorder() *recorder { return &recorder{ch: make(chan published, 64)} }

func (r *recorder) Publish(typ string, data any) { r.ch <- published{typ, data} }

// next returns the next event of type typ, skipping others.
func (r *recorder) next(tb testing.TB, typ string) any {
	tb.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-r.ch:
			if p.typ == typ {
				return p.data
			}
		case <-deadline:
			tb.Fatalf("no %q event", typ)
			return nil
		}
	}
}

func testConfig() Config {
	sc := session.DefaultConfig()
	sc.FrameInterval = time.Millisecond
	return Config{Session: sc, LookupDelay: 5 * time.Millisecond, DecoderName: "stub"}
}

var errBackend = errors.New("backend down")
