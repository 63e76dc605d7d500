package camera

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirReplaysFramesInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), pngFrame(t, 20, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), pngFrame(t, 10, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	d := NewDir(dir, false)
	s, err := d.Acquire(context.Background(), Constraints{})
	require.NoError(t, err)

	ctx := context.Background()
	img, err := s.Frame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())

	img, err = s.Frame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	_, err = s.Frame(ctx)
	assert.ErrorIs(t, err, ErrStreamClosed)

	Release(s)
}

func TestDirIsExclusiveUntilReleased(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), pngFrame(t, 8, 8), 0o644))

	d := NewDir(dir, true)
	s, err := d.Acquire(context.Background(), Constraints{})
	require.NoError(t, err)

	_, err = d.Acquire(context.Background(), Constraints{})
	var ae *AcquireError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, CauseUnavailable, ae.Cause)

	Release(s)
	Release(s) // idempotent

	_, err = s.Frame(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)

	s2, err := d.Acquire(context.Background(), Constraints{})
	require.NoError(t, err)
	Release(s2)
}

func TestDirMissingOrEmpty(t *testing.T) {
	var ae *AcquireError

	_, err := NewDir(filepath.Join(t.TempDir(), "missing"), false).Acquire(context.Background(), Constraints{})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, CauseNotFound, ae.Cause)

	_, err = NewDir(t.TempDir(), false).Acquire(context.Background(), Constraints{})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, CauseNotFound, ae.Cause)
}
