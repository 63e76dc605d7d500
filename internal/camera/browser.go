package camera

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eargollo/shelfscan/internal/frame"
)

// ErrNoPage is the acquisition error when no browser page is attached.
var ErrNoPage = errors.New("no browser page attached")

const writeWait = 5 * time.Second

// Control messages exchanged with the capture page. The page answers an
// "acquire" with "granted" or "denied" (carrying the getUserMedia error
// name), sends frames as binary messages, and reports "ended" when its
// tracks stop on their own.
type controlMessage struct {
	Type       string `json:"type"`
	FacingMode string `json:"facingMode,omitempty"`
	Name       string `json:"name,omitempty"`
	Message    string `json:"message,omitempty"`
	Label      string `json:"label,omitempty"`
}

// Browser is a camera living in a web page. The page attaches over a
// websocket (ServeHTTP) and is asked for camera access on Acquire. Only the
// most recently attached page drives the camera.
type Browser struct {
	Upgrader websocket.Upgrader

	mu       sync.Mutex
	page     *page
	attached chan struct{}
}

// NewBrowser returns a Browser. checkOrigin may be nil to accept same-origin
// pages only.
func NewBrowser(checkOrigin func(*http.Request) bool) *Browser {
	return &Browser{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 4 << 10,
			CheckOrigin:     checkOrigin,
		},
		attached: make(chan struct{}),
	}
}

func (b *Browser) Name() string { return "browser" }

// Attached reports whether a capture page is connected.
func (b *Browser) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page != nil
}

// ServeHTTP upgrades the request and serves the page until it disconnects.
func (b *Browser) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("camera feed: upgrade", "error", err)
		return
	}
	p := newPage(conn)
	b.attach(p)
	slog.Info("camera feed: page attached", "remote", r.RemoteAddr)

	p.readLoop()

	b.detach(p)
	slog.Info("camera feed: page detached", "remote", r.RemoteAddr)
}

func (b *Browser) attach(p *page) {
	b.mu.Lock()
	old := b.page
	b.page = p
	if old == nil {
		close(b.attached)
	}
	b.mu.Unlock()
	if old != nil {
		old.close()
	}
}

func (b *Browser) detach(p *page) {
	b.mu.Lock()
	if b.page == p {
		b.page = nil
		b.attached = make(chan struct{})
	}
	b.mu.Unlock()
	p.close()
}

func (b *Browser) waitPage(ctx context.Context) (*page, error) {
	for {
		b.mu.Lock()
		p, ch := b.page, b.attached
		b.mu.Unlock()
		if p != nil {
			return p, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &AcquireError{Cause: CauseNotFound, Err: ErrNoPage}
			}
			return nil, ctx.Err()
		}
	}
}

// Acquire asks the attached page for camera access with the given facing
// preference and waits for its answer.
func (b *Browser) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	p, err := b.waitPage(ctx)
	if err != nil {
		return nil, err
	}
	if !p.claim() {
		return nil, &AcquireError{Cause: CauseUnavailable, Err: ErrBusy}
	}

	p.drain()
	if err := p.send(controlMessage{Type: "acquire", FacingMode: string(c.Facing)}); err != nil {
		p.unclaim()
		return nil, &AcquireError{Cause: CauseUnavailable, Err: err}
	}

	select {
	case m := <-p.replies:
		if m.Type != "granted" {
			p.unclaim()
			return nil, &AcquireError{Cause: ClassifyName(m.Name), Err: errors.New(m.Name + ": " + m.Message)}
		}
		slog.Debug("camera feed: access granted", "label", m.Label)
		return p.newStream(), nil
	case <-p.closed:
		p.unclaim()
		return nil, &AcquireError{Cause: CauseNotFound, Err: ErrNoPage}
	case <-ctx.Done():
		// The page may still grant later; tell it to let go.
		_ = p.send(controlMessage{Type: "release"})
		p.unclaim()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &AcquireError{Cause: CauseUnknown, Err: errors.New("timed out waiting for camera permission")}
		}
		return nil, ctx.Err()
	}
}

type page struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	replies chan controlMessage
	frames  chan []byte
	closed  chan struct{}
	once    sync.Once

	mu     sync.Mutex
	busy   bool
	stream *browserStream
}

func newPage(conn *websocket.Conn) *page {
	return &page{
		conn:    conn,
		replies: make(chan controlMessage, 4),
		frames:  make(chan []byte, 1),
		closed:  make(chan struct{}),
	}
}

func (p *page) close() {
	p.once.Do(func() {
		close(p.closed)
		p.conn.Close()
	})
}

func (p *page) claim() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return false
	}
	p.busy = true
	return true
}

func (p *page) unclaim() {
	p.mu.Lock()
	p.busy = false
	p.stream = nil
	p.mu.Unlock()
}

// drain discards stale replies and frames left from an earlier stream.
func (p *page) drain() {
	for {
		select {
		case <-p.replies:
		case <-p.frames:
		default:
			return
		}
	}
}

func (p *page) send(m controlMessage) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(m)
}

func (p *page) readLoop() {
	p.conn.SetReadLimit(frame.MaxBytes)
	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("camera feed: read", "error", err)
			}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			p.offerFrame(data)
		case websocket.TextMessage:
			var m controlMessage
			if err := json.Unmarshal(data, &m); err != nil {
				slog.Debug("camera feed: bad control message", "error", err)
				continue
			}
			p.handleControl(m)
		}
	}
}

func (p *page) handleControl(m controlMessage) {
	switch m.Type {
	case "granted", "denied":
		select {
		case p.replies <- m:
		default:
		}
	case "ended":
		p.mu.Lock()
		s := p.stream
		p.mu.Unlock()
		if s != nil {
			s.end()
		}
	}
}

// offerFrame keeps only the newest frame; a slow decoder never queues up
// old frames.
func (p *page) offerFrame(data []byte) {
	select {
	case p.frames <- data:
		return
	default:
	}
	select {
	case <-p.frames:
	default:
	}
	select {
	case p.frames <- data:
	default:
	}
}

func (p *page) newStream() *browserStream {
	s := &browserStream{page: p, done: make(chan struct{})}
	s.track = &funcTrack{kind: "video", stop: func() {
		s.end()
		if err := p.send(controlMessage{Type: "release"}); err != nil {
			slog.Debug("camera feed: send release", "error", err)
		}
		p.unclaim()
	}}
	p.mu.Lock()
	p.stream = s
	p.mu.Unlock()
	return s
}

type browserStream struct {
	page  *page
	track *funcTrack
	done  chan struct{}
	once  sync.Once
}

func (s *browserStream) end() { s.once.Do(func() { close(s.done) }) }

func (s *browserStream) Tracks() []Track { return []Track{s.track} }

func (s *browserStream) Frame(ctx context.Context) (image.Image, error) {
	select {
	case data := <-s.page.frames:
		return frame.Decode(data)
	case <-s.done:
		return nil, ErrStreamClosed
	case <-s.page.closed:
		return nil, ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
