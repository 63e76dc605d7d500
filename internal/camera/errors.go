package camera

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"syscall"
)

// Cause classifies why a camera could not be acquired.
type Cause int

const (
	CauseUnknown Cause = iota
	CausePermissionDenied
	CauseNotFound
	CauseUnavailable
)

func (c Cause) String() string {
	switch c {
	case CausePermissionDenied:
		return "permission denied"
	case CauseNotFound:
		return "not found"
	case CauseUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Message is the text shown to the person holding the camera.
func (c Cause) Message() string {
	switch c {
	case CausePermissionDenied:
		return "Camera access was denied. Please allow camera access in your browser settings."
	case CauseNotFound:
		return "No camera found on this device."
	case CauseUnavailable:
		return "Camera is already in use by another application."
	default:
		return "An unexpected error occurred while accessing the camera."
	}
}

// AcquireError is a classified acquisition failure.
type AcquireError struct {
	Cause Cause
	Err   error
}

func (e *AcquireError) Error() string {
	if e.Err == nil {
		return "camera: " + e.Cause.String()
	}
	return fmt.Sprintf("camera: %s: %v", e.Cause, e.Err)
}

func (e *AcquireError) Unwrap() error { return e.Err }

// StatusError is an unexpected HTTP status from a network camera.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("camera %s returned status %d", e.URL, e.StatusCode)
}

// ClassifyName maps a browser getUserMedia error name to a Cause.
func ClassifyName(name string) Cause {
	switch name {
	case "NotAllowedError", "PermissionDeniedError", "SecurityError":
		return CausePermissionDenied
	case "NotFoundError", "DevicesNotFoundError", "OverconstrainedError", "NotSupportedError":
		return CauseNotFound
	case "NotReadableError", "TrackStartError", "AbortError":
		return CauseUnavailable
	default:
		return CauseUnknown
	}
}

// Classify wraps err in an *AcquireError. Errors that already carry a cause
// are returned unchanged.
func Classify(err error) *AcquireError {
	var ae *AcquireError
	if errors.As(err, &ae) {
		return ae
	}
	return &AcquireError{Cause: causeOf(err), Err: err}
}

func causeOf(err error) Cause {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return CausePermissionDenied
		case http.StatusNotFound, http.StatusGone:
			return CauseNotFound
		case http.StatusConflict, http.StatusLocked, http.StatusServiceUnavailable, http.StatusTooManyRequests:
			return CauseUnavailable
		}
		return CauseUnknown
	}

	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, fs.ErrPermission):
		return CausePermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		return CauseNotFound
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		return CauseNotFound
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.ECONNREFUSED):
		return CauseUnavailable
	}
	return CauseUnknown
}
