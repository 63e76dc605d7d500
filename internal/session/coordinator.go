// Package session drives one barcode scan at a time: it acquires the camera,
// runs the per-frame decode loop, drops repeated detections and releases the
// camera on every exit path.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eargollo/shelfscan/internal/camera"
	"github.com/eargollo/shelfscan/internal/decoder"
	"github.com/eargollo/shelfscan/internal/metrics"
)

var (
	// ErrAlreadyActive is returned by Start while a session is acquiring or scanning.
	ErrAlreadyActive = errors.New("a scan session is already active")
	// ErrAlreadyDetected is returned by Start while a detected code awaits Reset.
	ErrAlreadyDetected = errors.New("a code was already detected; reset before scanning again")
	// ErrNeedsReset is returned by Start after a camera failure.
	ErrNeedsReset = errors.New("the scan session failed; reset before scanning again")
	// ErrNotActive is returned by Stop when there is nothing to stop.
	ErrNotActive = errors.New("no scan session is active")
	// ErrDisposed is returned by Start after Dispose.
	ErrDisposed = errors.New("scan coordinator disposed")
)

// Config tunes a Coordinator.
type Config struct {
	// Cooldown is the minimum time between two accepted detections.
	Cooldown time.Duration
	// FrameInterval paces the decode loop: at most one decode per interval.
	FrameInterval time.Duration
	// AcquireTimeout bounds camera acquisition. Zero means no limit.
	AcquireTimeout time.Duration
	Constraints    camera.Constraints
}

// DefaultConfig returns a rear-camera, 30 fps, 400ms-cooldown configuration.
func DefaultConfig() Config {
	return Config{
		Cooldown:       400 * time.Millisecond,
		FrameInterval:  33 * time.Millisecond,
		AcquireTimeout: 10 * time.Second,
		Constraints:    camera.Constraints{Facing: camera.FacingEnvironment},
	}
}

// Options carries the outward callbacks. Both are called from the session's
// loop goroutine with no lock held; they must not call Dispose.
type Options struct {
	OnDetect func(DetectionEvent)
	OnError  func(Failure)
	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// Coordinator owns the camera stream and decoder for a sequence of scan
// sessions, one at a time. It is safe for concurrent use.
type Coordinator struct {
	dev  camera.Device
	dec  decoder.Decoder
	cfg  Config
	opts Options
	now  func() time.Time

	counters Counters
	loops    sync.WaitGroup
	// decMu keeps a stopped session's last decode from overlapping the
	// next session's first one.
	decMu sync.Mutex

	mu            sync.Mutex
	status        Status
	sessionID     string
	startedAt     time.Time
	epoch         uint64
	cancel        context.CancelFunc
	stream        camera.Stream
	seen          map[string]struct{}
	lastDetection time.Time
	detected      *DetectionEvent
	failure       *camera.AcquireError
	disposed      bool

	closeOnce sync.Once
}

// New returns an idle Coordinator. dec is owned by the coordinator from now
// on and closed by Dispose.
func New(dev camera.Device, dec decoder.Decoder, cfg Config, opts Options) *Coordinator {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultConfig().FrameInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		dev:  dev,
		dec:  dec,
		cfg:  cfg,
		opts: opts,
		now:  now,
		seen: make(map[string]struct{}),
	}
}

// Start begins a new session and returns its ID. Acquisition and scanning
// continue in the background.
func (c *Coordinator) Start() (string, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return "", ErrDisposed
	}
	switch c.status {
	case AcquiringCamera, Scanning:
		c.mu.Unlock()
		return "", ErrAlreadyActive
	case Detected:
		c.mu.Unlock()
		return "", ErrAlreadyDetected
	case Error:
		c.mu.Unlock()
		return "", ErrNeedsReset
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.epoch++
	epoch := c.epoch
	c.sessionID = uuid.NewString()
	c.startedAt = c.now()
	c.status = AcquiringCamera
	c.cancel = cancel
	c.failure = nil
	c.counters.reset()
	id := c.sessionID
	c.loops.Add(1)
	c.mu.Unlock()

	metrics.SessionsStartedTotal.Inc()
	metrics.SessionActive.Set(1)
	slog.Info("scan session started", "session", id, "camera", c.dev.Name())

	go c.run(ctx, epoch)
	return id, nil
}

// Stop ends an acquiring or scanning session. Seen codes and the last
// detection are kept.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.status.Active() {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.status = Stopped
	stream := c.teardownLocked()
	id := c.sessionID
	c.mu.Unlock()

	camera.Release(stream)
	metrics.SessionActive.Set(0)
	slog.Info("scan session stopped", "session", id)
	return nil
}

// Pause is Stop under the name the capture page uses.
func (c *Coordinator) Pause() error { return c.Stop() }

// Reset abandons any session and returns to Idle with seen codes, the
// detected code and any error cleared.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	wasActive := c.status.Active()
	stream := c.teardownLocked()
	c.status = Idle
	c.seen = make(map[string]struct{})
	c.detected = nil
	c.failure = nil
	c.mu.Unlock()

	camera.Release(stream)
	if wasActive {
		metrics.SessionActive.Set(0)
	}
}

// Dispose stops any session, waits for its loop to exit and closes the
// decoder. It is safe to call more than once.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	wasActive := c.status.Active()
	if wasActive {
		c.status = Stopped
	}
	stream := c.teardownLocked()
	c.disposed = true
	c.mu.Unlock()

	camera.Release(stream)
	if wasActive {
		metrics.SessionActive.Set(0)
	}
	c.loops.Wait()
	c.closeOnce.Do(func() {
		if err := c.dec.Close(); err != nil {
			slog.Warn("close decoder", "error", err)
		}
	})
}

// State returns a snapshot of the coordinator.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Status:    c.status,
		SessionID: c.sessionID,
		StartedAt: c.startedAt,
		Err:       c.failure,
		SeenCodes: len(c.seen),
		Counters:  c.counters.snapshot(),
	}
	if c.detected != nil {
		ev := *c.detected
		st.Detected = &ev
	}
	return st
}

// teardownLocked cancels the loop and hands back the stream for release
// outside the lock.
func (c *Coordinator) teardownLocked() camera.Stream {
	if c.cancel != nil {
		c.cancel()
	}
	s := c.stream
	c.stream = nil
	return s
}

// currentLocked reports whether epoch is still the live session in status want.
func (c *Coordinator) currentLocked(epoch uint64, want Status) bool {
	return c.epoch == epoch && c.status == want
}

func (c *Coordinator) run(ctx context.Context, epoch uint64) {
	defer c.loops.Done()

	acqCtx, cancelAcq := ctx, context.CancelFunc(func() {})
	if c.cfg.AcquireTimeout > 0 {
		acqCtx, cancelAcq = context.WithTimeout(ctx, c.cfg.AcquireTimeout)
	}
	stream, err := c.dev.Acquire(acqCtx, c.cfg.Constraints)
	cancelAcq()

	if !c.attach(epoch, stream, err) {
		return
	}
	c.loop(ctx, epoch, stream)
}

// attach installs a freshly acquired stream, or records the failure. A
// stream that arrives after the session was stopped is released at once.
func (c *Coordinator) attach(epoch uint64, stream camera.Stream, err error) bool {
	c.mu.Lock()
	if !c.currentLocked(epoch, AcquiringCamera) {
		c.mu.Unlock()
		if err == nil {
			camera.Release(stream)
		}
		return false
	}
	if err != nil {
		c.mu.Unlock()
		c.fail(epoch, camera.Classify(err))
		return false
	}
	c.stream = stream
	c.status = Scanning
	id := c.sessionID
	c.mu.Unlock()

	slog.Debug("camera acquired", "session", id)
	return true
}

// fail moves the live session to Error and reports it once.
func (c *Coordinator) fail(epoch uint64, ae *camera.AcquireError) {
	c.mu.Lock()
	if c.epoch != epoch || !c.status.Active() {
		c.mu.Unlock()
		return
	}
	c.status = Error
	c.failure = ae
	stream := c.teardownLocked()
	f := Failure{SessionID: c.sessionID, Err: ae, Timestamp: c.now()}
	c.mu.Unlock()

	camera.Release(stream)
	metrics.SessionActive.Set(0)
	metrics.CameraErrorsTotal.WithLabelValues(ae.Cause.String()).Inc()
	slog.Warn("scan session failed", "session", f.SessionID, "cause", ae.Cause.String(), "error", ae.Err)

	if c.opts.OnError != nil {
		c.opts.OnError(f)
	}
}

func (c *Coordinator) loop(ctx context.Context, epoch uint64, stream camera.Stream) {
	ticker := time.NewTicker(c.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		live := c.currentLocked(epoch, Scanning)
		c.mu.Unlock()
		if !live {
			return
		}

		img, err := stream.Frame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, camera.ErrStreamClosed) {
				c.fail(epoch, &camera.AcquireError{Cause: camera.CauseUnavailable, Err: err})
				return
			}
			c.counters.FrameErrors.Add(1)
			metrics.FrameErrorsTotal.Inc()
			slog.Debug("read frame", "error", err)
			continue
		}

		c.counters.Frames.Add(1)
		c.decMu.Lock()
		began := time.Now()
		res := c.dec.Decode(ctx, img)
		metrics.DecodeDuration.Observe(time.Since(began).Seconds())
		c.decMu.Unlock()

		if c.apply(ctx, epoch, res) {
			return
		}
	}
}

// apply folds one decode result into the session. It returns true when the
// loop must end.
func (c *Coordinator) apply(ctx context.Context, epoch uint64, res decoder.Result) bool {
	metrics.FramesTotal.WithLabelValues(res.Kind.String()).Inc()

	switch {
	case res.Kind == decoder.NotFound, res.Kind == decoder.Found && res.Code == "":
		c.counters.NotFound.Add(1)
		return false
	case res.Kind == decoder.Failed:
		if ctx.Err() != nil {
			return true
		}
		c.counters.DecodeErrors.Add(1)
		slog.Debug("decode frame", "error", res.Err)
		return false
	}

	c.mu.Lock()
	if !c.currentLocked(epoch, Scanning) {
		c.mu.Unlock()
		return true
	}
	now := c.now()
	if _, dup := c.seen[res.Code]; dup {
		c.mu.Unlock()
		c.counters.DiscardedSeen.Add(1)
		metrics.DiscardedTotal.WithLabelValues("seen").Inc()
		return false
	}
	if !c.lastDetection.IsZero() && now.Sub(c.lastDetection) < c.cfg.Cooldown {
		c.mu.Unlock()
		c.counters.DiscardedCooldown.Add(1)
		metrics.DiscardedTotal.WithLabelValues("cooldown").Inc()
		return false
	}

	c.seen[res.Code] = struct{}{}
	c.lastDetection = now
	ev := DetectionEvent{SessionID: c.sessionID, Code: res.Code, Format: res.Format, Timestamp: now}
	c.detected = &ev
	c.status = Detected
	stream := c.teardownLocked()
	c.mu.Unlock()

	camera.Release(stream)
	metrics.SessionActive.Set(0)
	metrics.DetectionsTotal.Inc()
	slog.Info("code detected", "session", ev.SessionID, "code", ev.Code, "format", ev.Format)

	if c.opts.OnDetect != nil {
		c.opts.OnDetect(ev)
	}
	return true
}
