package regression_test

import (
	"testing"
)

type snapshot struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// TestSession_StartThenReset starts a session, checks that a second start is
// refused, and resets back to idle.
func TestSession_StartThenReset(t *testing.T) {
	ts := newTestServer(t)
	ts.reset(t)

	resp := ts.post(t, "/api/session")
	requireStatus(t, resp, 202)
	var started snapshot
	decodeJSON(t, resp, &started)
	if started.SessionID == "" {
		t.Fatal("expected a session id")
	}
	// A fast camera may already have detected or failed by now.
	if started.Status == "idle" || started.Status == "stopped" {
		t.Fatalf("expected a started session, got %q", started.Status)
	}

	resp = ts.post(t, "/api/session")
	if resp.StatusCode != 409 {
		t.Fatalf("second start: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.post(t, "/api/session/reset")
	requireStatus(t, resp, 200)
	var reset snapshot
	decodeJSON(t, resp, &reset)
	if reset.Status != "idle" {
		t.Fatalf("expected idle after reset, got %q", reset.Status)
	}
}

// TestSession_PauseWithoutSession verifies pause is refused when idle.
func TestSession_PauseWithoutSession(t *testing.T) {
	ts := newTestServer(t)
	ts.reset(t)

	resp := ts.post(t, "/api/session/pause")
	requireStatus(t, resp, 404)
	if code := errorCode(t, resp); code != "NO_ACTIVE_SESSION" {
		t.Fatalf("expected NO_ACTIVE_SESSION, got %q", code)
	}
}
