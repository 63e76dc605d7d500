package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetJobRejectsBadExpression(t *testing.T) {
	s := New()
	err := s.SetJob("purge", "not a cron", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Empty(t, s.Jobs())
}

func TestSetJobReplacesByName(t *testing.T) {
	s := New()
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.SetJob("purge", "0 3 * * *", noop))
	require.NoError(t, s.SetJob("purge", "0 4 * * *", noop))
	require.NoError(t, s.SetJob("cache", "@hourly", noop))

	assert.Equal(t, []string{"cache", "purge"}, s.Jobs())
	assert.Equal(t, "0 4 * * *", s.CronExpr("purge"))
}

func TestNextRunAt(t *testing.T) {
	s := New()
	require.NoError(t, s.SetJob("purge", "0 3 * * *", func(context.Context) error { return nil }))
	assert.Nil(t, s.NextRunAt("missing"))

	s.Start()
	defer s.Stop()

	next := s.NextRunAt("purge")
	require.NotNil(t, next)
	assert.Equal(t, 3, next.Hour())
	assert.Zero(t, next.Minute())
}

func TestRunNow(t *testing.T) {
	s := New()
	var runs atomic.Int32
	require.NoError(t, s.SetJob("purge", "@daily", func(context.Context) error {
		runs.Add(1)
		return errors.New("logged, not returned")
	}))

	require.NoError(t, s.RunNow("purge"))
	assert.Equal(t, int32(1), runs.Load())
	assert.Error(t, s.RunNow("missing"))
}
