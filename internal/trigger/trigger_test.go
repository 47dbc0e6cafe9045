package trigger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docpipeline/internal/trigger"
)

func TestRunOnceInvokesRunFuncExactlyOnce(t *testing.T) {
	var calls int
	err := trigger.RunOnce(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunOncePropagatesError(t *testing.T) {
	boom := errors.New("run failed")
	err := trigger.RunOnce(context.Background(), func(ctx context.Context) error {
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestNewSchedulerRejectsInvalidRedisURL(t *testing.T) {
	_, err := trigger.NewScheduler("not-a-redis-url", 1, func(ctx context.Context) error { return nil }, nil)
	require.Error(t, err)
}

func TestStartWithCronSpecAlsoStartsPeriodicManager(t *testing.T) {
	s, err := trigger.NewScheduler("redis://localhost:6399", 1, func(ctx context.Context) error { return nil }, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background(), "*/5 * * * *"))
	require.NoError(t, s.Stop())
}

func TestStartWithoutCronSpecSkipsPeriodicManager(t *testing.T) {
	s, err := trigger.NewScheduler("redis://localhost:6399", 1, func(ctx context.Context) error { return nil }, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background(), ""))
	require.NoError(t, s.Stop())
}
