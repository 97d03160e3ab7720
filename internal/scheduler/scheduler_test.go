package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnStartAndStats(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	var runs atomic.Int32
	require.NoError(t, s.AddSingletonJob("janitor", "Janitor", "clears things", "0 * * * *", func(ctx context.Context) (string, error) {
		runs.Add(1)
		return "cleared 2", nil
	}, true))

	s.Start()
	t.Cleanup(func() { _ = s.Stop() })

	require.Eventually(t, func() bool {
		info, ok := s.Job("janitor")
		return ok && info.Status == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	info, _ := s.Job("janitor")
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, 1, info.RunCount)
	assert.Equal(t, "cleared 2", info.LastResult)
	assert.False(t, info.NextRun.IsZero())
	assert.Len(t, s.Jobs(), 1)
}

func TestFailedJob(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.AddSingletonJob("broken", "Broken", "", "0 * * * *", func(ctx context.Context) (string, error) {
		return "", errors.New("database is gone")
	}, false))

	s.Start()
	t.Cleanup(func() { _ = s.Stop() })

	require.NoError(t, s.RunJobNow("broken"))
	require.Eventually(t, func() bool {
		info, _ := s.Job("broken")
		return info.Status == JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	info, _ := s.Job("broken")
	assert.Equal(t, 1, info.ErrorCount)
	assert.Equal(t, "database is gone", info.LastError)
}

func TestAddJobValidation(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	noop := func(ctx context.Context) (string, error) { return "", nil }

	assert.Error(t, s.AddSingletonJob("bad", "Bad", "", "not a cron", noop, false))
	require.NoError(t, s.AddSingletonJob("ok", "OK", "", "*/5 * * * *", noop, false))
	assert.Error(t, s.AddSingletonJob("ok", "OK", "", "*/5 * * * *", noop, false))
	assert.Error(t, s.RunJobNow("missing"))
}
