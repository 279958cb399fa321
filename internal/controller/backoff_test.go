package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff_DoublesUpToMax(t *testing.T) {
	b := newBackoff(time.Millisecond, 3*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, b.Wait(ctx))
	require.Equal(t, 2*time.Millisecond, b.Current())
	require.NoError(t, b.Wait(ctx))
	require.Equal(t, 3*time.Millisecond, b.Current())
}

func TestBackoff_WaitHonoursContext(t *testing.T) {
	b := newBackoff(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Wait(ctx), context.Canceled)
}

type flakySpawner struct {
	failures int
	calls    int
}

func (s *flakySpawner) Spawn(context.Context, int) (Process, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("fork: resource temporarily unavailable")
	}
	return &countingProcess{}, nil
}

func TestSpawnWithRetry(t *testing.T) {
	var retries []int
	onRetry := func(attempt int, _ error) { retries = append(retries, attempt) }

	s := &flakySpawner{failures: spawnAttempts - 1}
	p, err := spawnWithRetry(context.Background(), s, 0, onRetry)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, []int{1, 2}, retries)

	s = &flakySpawner{failures: spawnAttempts}
	_, err = spawnWithRetry(context.Background(), s, 0, func(int, error) {})
	require.Error(t, err)
	require.Equal(t, spawnAttempts, s.calls)
}
