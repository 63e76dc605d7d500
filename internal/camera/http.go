package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/eargollo/shelfscan/internal/frame"
)

// HTTPCamera reads frames from a network camera. Both MJPEG endpoints
// (multipart/x-mixed-replace) and still-snapshot endpoints (image/*) work;
// snapshot endpoints are polled once per frame.
type HTTPCamera struct {
	DeviceName string
	URL        string
	Facing     Facing
	Client     *http.Client

	mu   sync.Mutex
	busy bool
}

// NewHTTPCamera returns a camera for url. The default client has no timeout
// since MJPEG responses never end; cancellation comes from the stream.
func NewHTTPCamera(name, url string, facing Facing) *HTTPCamera {
	return &HTTPCamera{DeviceName: name, URL: url, Facing: facing, Client: &http.Client{}}
}

func (c *HTTPCamera) Name() string {
	if c.DeviceName != "" {
		return c.DeviceName
	}
	return c.URL
}

// FacingMode reports the orientation the camera was configured with.
func (c *HTTPCamera) FacingMode() Facing { return c.Facing }

// Acquire opens the camera URL.
func (c *HTTPCamera) Acquire(ctx context.Context, _ Constraints) (Stream, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, &AcquireError{Cause: CauseUnavailable, Err: ErrBusy}
	}
	c.busy = true
	c.mu.Unlock()

	s, err := c.open(ctx)
	if err != nil {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
		return nil, err
	}
	return s, nil
}

func (c *HTTPCamera) open(ctx context.Context) (Stream, error) {
	// The stream outlives the acquire call, so it gets its own context that
	// is only tied to ctx until the response headers arrive.
	streamCtx, cancel := context.WithCancel(context.Background())
	stopLink := context.AfterFunc(ctx, cancel)

	resp, err := c.get(streamCtx)
	linked := stopLink()
	if err != nil {
		cancel()
		if !linked && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Classify(err)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, &AcquireError{Cause: CauseUnknown, Err: fmt.Errorf("content type: %w", err)}
	}

	track := &funcTrack{kind: "video", stop: func() {
		cancel()
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			resp.Body.Close()
			cancel()
			return nil, &AcquireError{Cause: CauseUnknown, Err: errors.New("multipart response without boundary")}
		}
		return &mjpegStream{
			ctx:    streamCtx,
			body:   resp.Body,
			parts:  multipart.NewReader(resp.Body, boundary),
			track:  track,
			cancel: cancel,
		}, nil

	case strings.HasPrefix(mediaType, "image/"):
		first, err := io.ReadAll(io.LimitReader(resp.Body, frame.MaxBytes+1))
		resp.Body.Close()
		if err != nil {
			cancel()
			return nil, Classify(err)
		}
		return &snapshotStream{cam: c, ctx: streamCtx, pending: first, track: track}, nil

	default:
		resp.Body.Close()
		cancel()
		return nil, &AcquireError{Cause: CauseUnknown, Err: fmt.Errorf("unsupported content type %q", mediaType)}
	}
}

func (c *HTTPCamera) get(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{URL: c.URL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

type mjpegStream struct {
	ctx    context.Context
	body   io.ReadCloser
	parts  *multipart.Reader
	track  *funcTrack
	cancel context.CancelFunc

	mu sync.Mutex
}

func (s *mjpegStream) Tracks() []Track { return []Track{s.track} }

func (s *mjpegStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return nil, ErrStreamClosed
	}
	// Reads block on the response body; cancelling ctx tears the stream down.
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	part, err := s.parts.NextPart()
	if err != nil {
		return nil, s.readErr(err)
	}
	data, err := io.ReadAll(io.LimitReader(part, frame.MaxBytes+1))
	part.Close()
	if err != nil {
		return nil, s.readErr(err)
	}
	return frame.Decode(data)
}

func (s *mjpegStream) readErr(err error) error {
	if s.ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		s.body.Close()
		return ErrStreamClosed
	}
	return err
}

type snapshotStream struct {
	cam   *HTTPCamera
	ctx   context.Context
	track *funcTrack

	mu      sync.Mutex
	pending []byte
}

func (s *snapshotStream) Tracks() []Track { return []Track{s.track} }

func (s *snapshotStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return nil, ErrStreamClosed
	}
	if s.pending != nil {
		data := s.pending
		s.pending = nil
		return frame.Decode(data)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	resp, err := s.cam.get(reqCtx)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, ErrStreamClosed
		}
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, frame.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	return frame.Decode(data)
}
