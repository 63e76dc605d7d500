// Package camera defines the boundary between a scan session and whatever
// supplies its video frames: a browser page, a network camera or a directory
// of still images.
package camera

import (
	"context"
	"errors"
	"image"
)

// Facing is the preferred camera orientation.
type Facing string

const (
	FacingEnvironment Facing = "environment" // rear camera
	FacingUser        Facing = "user"        // front camera
	FacingAny         Facing = ""
)

// ParseFacing maps a config value to a Facing. "any" and "" both mean no preference.
func ParseFacing(s string) Facing {
	switch s {
	case "environment", "rear", "back":
		return FacingEnvironment
	case "user", "front":
		return FacingUser
	default:
		return FacingAny
	}
}

// Constraints are passed to Acquire.
type Constraints struct {
	Facing Facing
}

// ErrStreamClosed is returned by Stream.Frame once the stream was released or
// the remote end went away.
var ErrStreamClosed = errors.New("camera: stream closed")

// Device hands out exclusive live streams.
type Device interface {
	Name() string
	// Acquire blocks until the device grants a stream, ctx is done, or the
	// device refuses. Refusals are returned as *AcquireError.
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live video source.
type Stream interface {
	// Frame blocks until the next frame is available.
	Frame(ctx context.Context) (image.Image, error)
	Tracks() []Track
}

// Track is one media track of a stream. Stop must be idempotent.
type Track interface {
	Kind() string
	Stop()
}

// Release stops every track of s. A nil stream is ignored.
func Release(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
