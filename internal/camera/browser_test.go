package camera

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attachPage starts a Browser behind a test server and connects a fake page.
func attachPage(t *testing.T) (*Browser, *websocket.Conn) {
	t.Helper()
	b := NewBrowser(nil)
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, b.Attached, 2*time.Second, 5*time.Millisecond)
	return b, conn
}

func readControl(t *testing.T, conn *websocket.Conn) controlMessage {
	t.Helper()
	var m controlMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestBrowserGrantFramesRelease(t *testing.T) {
	b, conn := attachPage(t)

	type result struct {
		s   Stream
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := b.Acquire(context.Background(), Constraints{Facing: FacingEnvironment})
		done <- result{s, err}
	}()

	m := readControl(t, conn)
	assert.Equal(t, "acquire", m.Type)
	assert.Equal(t, "environment", m.FacingMode)
	require.NoError(t, conn.WriteJSON(controlMessage{Type: "granted", Label: "Back Camera"}))

	res := <-done
	require.NoError(t, res.err)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pngFrame(t, 24, 12)))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	img, err := res.s.Frame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24, img.Bounds().Dx())

	Release(res.s)
	assert.Equal(t, "release", readControl(t, conn).Type)

	_, err = res.s.Frame(ctx)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestBrowserDenied(t *testing.T) {
	b, conn := attachPage(t)

	errc := make(chan error, 1)
	go func() {
		_, err := b.Acquire(context.Background(), Constraints{Facing: FacingEnvironment})
		errc <- err
	}()

	readControl(t, conn)
	require.NoError(t, conn.WriteJSON(controlMessage{Type: "denied", Name: "NotAllowedError", Message: "Permission denied"}))

	var ae *AcquireError
	require.ErrorAs(t, <-errc, &ae)
	assert.Equal(t, CausePermissionDenied, ae.Cause)
}

func TestBrowserNoPageTimesOut(t *testing.T) {
	b := NewBrowser(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := b.Acquire(ctx, Constraints{})
	var ae *AcquireError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, CauseNotFound, ae.Cause)
	assert.ErrorIs(t, err, ErrNoPage)
}

func TestBrowserEndedClosesStream(t *testing.T) {
	b, conn := attachPage(t)

	done := make(chan Stream, 1)
	go func() {
		s, err := b.Acquire(context.Background(), Constraints{})
		if err == nil {
			done <- s
		}
		close(done)
	}()
	readControl(t, conn)
	require.NoError(t, conn.WriteJSON(controlMessage{Type: "granted"}))
	s, ok := <-done
	require.True(t, ok)

	require.NoError(t, conn.WriteJSON(controlMessage{Type: "ended"}))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.Frame(ctx)
	assert.ErrorIs(t, err, ErrStreamClosed)
	Release(s)
}
