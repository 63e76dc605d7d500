package camera

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyName(t *testing.T) {
	cases := map[string]Cause{
		"NotAllowedError":      CausePermissionDenied,
		"SecurityError":        CausePermissionDenied,
		"NotFoundError":        CauseNotFound,
		"OverconstrainedError": CauseNotFound,
		"NotReadableError":     CauseUnavailable,
		"AbortError":           CauseUnavailable,
		"TypeError":            CauseUnknown,
		"":                     CauseUnknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, ClassifyName(name), name)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Cause
	}{
		{fmt.Errorf("open: %w", fs.ErrPermission), CausePermissionDenied},
		{fmt.Errorf("open: %w", fs.ErrNotExist), CauseNotFound},
		{&net.DNSError{Err: "no such host", Name: "cam.local", IsNotFound: true}, CauseNotFound},
		{fmt.Errorf("dial: %w", syscall.ECONNREFUSED), CauseUnavailable},
		{syscall.EBUSY, CauseUnavailable},
		{&StatusError{URL: "http://cam", StatusCode: http.StatusForbidden}, CausePermissionDenied},
		{&StatusError{URL: "http://cam", StatusCode: http.StatusNotFound}, CauseNotFound},
		{&StatusError{URL: "http://cam", StatusCode: http.StatusServiceUnavailable}, CauseUnavailable},
		{&StatusError{URL: "http://cam", StatusCode: http.StatusTeapot}, CauseUnknown},
		{errors.New("boom"), CauseUnknown},
	}
	for _, tc := range cases {
		got := Classify(tc.err)
		assert.Equal(t, tc.want, got.Cause, "%v", tc.err)
		assert.ErrorIs(t, got, tc.err)
	}
}

func TestClassifyKeepsExistingCause(t *testing.T) {
	orig := &AcquireError{Cause: CauseUnavailable, Err: ErrBusy}
	assert.Same(t, orig, Classify(fmt.Errorf("wrapped: %w", orig)))
}

func TestCauseMessage(t *testing.T) {
	assert.Equal(t, "permission denied", CausePermissionDenied.String())
	assert.Contains(t, CausePermissionDenied.Message(), "denied")
	assert.Contains(t, CauseNotFound.Message(), "No camera found")
	assert.Contains(t, CauseUnavailable.Message(), "already in use")
}
