package session

import (
	"fmt"
	"time"

	"github.com/eargollo/shelfscan/internal/camera"
)

// Status is the lifecycle state of a scan session.
type Status int

const (
	Idle Status = iota
	AcquiringCamera
	Scanning
	Detected
	Stopped
	Error
)

var statusNames = [...]string{
	Idle:            "idle",
	AcquiringCamera: "acquiring_camera",
	Scanning:        "scanning",
	Detected:        "detected",
	Stopped:         "stopped",
	Error:           "error",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText renders the status name in JSON.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Active reports whether the session holds, or is about to hold, the camera.
func (s Status) Active() bool { return s == AcquiringCamera || s == Scanning }

// DetectionEvent is one accepted decode. It is emitted at most once per code
// per session.
type DetectionEvent struct {
	SessionID string    `json:"session_id"`
	Code      string    `json:"code"`
	Format    string    `json:"format,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Failure is a session-ending camera error.
type Failure struct {
	SessionID string
	Err       *camera.AcquireError
	Timestamp time.Time
}

// State is a point-in-time snapshot of the coordinator.
type State struct {
	Status    Status               `json:"status"`
	SessionID string               `json:"session_id,omitempty"`
	StartedAt time.Time            `json:"started_at,omitzero"`
	Detected  *DetectionEvent      `json:"detected,omitempty"`
	Err       *camera.AcquireError `json:"-"`
	SeenCodes int                  `json:"seen_codes"`
	Counters  CounterSnapshot      `json:"counters"`
}
