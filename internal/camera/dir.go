package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/eargollo/shelfscan/internal/frame"
)

// ErrBusy means the device already handed out a stream that is still live.
var ErrBusy = errors.New("camera: device busy")

// Dir replays the image files of a directory as a video stream, in name
// order. It is used for kiosk replays and for decoding recorded captures.
type Dir struct {
	Path string
	// Loop restarts from the first file after the last one. Without it the
	// stream closes after one pass.
	Loop bool

	mu   sync.Mutex
	busy bool
}

// NewDir returns a Dir device for path.
func NewDir(path string, loop bool) *Dir {
	return &Dir{Path: path, Loop: loop}
}

func (d *Dir) Name() string { return "dir:" + d.Path }

// Acquire lists the frame files and returns a stream over them.
func (d *Dir) Acquire(ctx context.Context, _ Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, Classify(err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && frame.IsFrameFile(e.Name()) {
			files = append(files, filepath.Join(d.Path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &AcquireError{Cause: CauseNotFound, Err: fmt.Errorf("no frame files in %s", d.Path)}
	}
	sort.Strings(files)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy {
		return nil, &AcquireError{Cause: CauseUnavailable, Err: ErrBusy}
	}
	d.busy = true

	s := &dirStream{files: files, loop: d.Loop, done: make(chan struct{})}
	s.track = &funcTrack{kind: "video", stop: func() {
		close(s.done)
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}}
	return s, nil
}

type dirStream struct {
	files []string
	loop  bool
	done  chan struct{}
	track *funcTrack

	mu   sync.Mutex
	next int
}

func (s *dirStream) Tracks() []Track { return []Track{s.track} }

func (s *dirStream) Frame(ctx context.Context) (image.Image, error) {
	select {
	case <-s.done:
		return nil, ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	if s.next >= len(s.files) {
		if !s.loop {
			s.mu.Unlock()
			return nil, ErrStreamClosed
		}
		s.next = 0
	}
	path := s.files[s.next]
	s.next++
	s.mu.Unlock()

	return frame.Load(path)
}

// funcTrack runs stop at most once.
type funcTrack struct {
	kind string
	once sync.Once
	stop func()
}

func (t *funcTrack) Kind() string { return t.kind }

func (t *funcTrack) Stop() { t.once.Do(t.stop) }
