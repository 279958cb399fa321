package controller

import (
	"context"
	"math/rand"
	"time"
)

// Spawn retry policy. Fork and exec can fail transiently under memory or
// process-count pressure.
const (
	spawnAttempts       = 3
	spawnBackoffInitial = 50 * time.Millisecond
	spawnBackoffMax     = time.Second
)

// backoff implements exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, current: initial}
}

// Wait sleeps for the current duration, ±20%, then doubles it up to max.
// It returns early with ctx's error.
func (b *backoff) Wait(ctx context.Context) error {
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	t := time.NewTimer(time.Duration(float64(b.current) + jitter))
	defer t.Stop()

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Current returns the next sleep duration before jitter.
func (b *backoff) Current() time.Duration {
	return b.current
}

// spawnWithRetry calls Spawn up to spawnAttempts times.
func spawnWithRetry(ctx context.Context, s Spawner, epoch int, onRetry func(attempt int, err error)) (Process, error) {
	b := newBackoff(spawnBackoffInitial, spawnBackoffMax)
	var err error
	for attempt := 1; ; attempt++ {
		var p Process
		p, err = s.Spawn(ctx, epoch)
		if err == nil {
			return p, nil
		}
		if attempt == spawnAttempts || ctx.Err() != nil {
			return nil, err
		}
		onRetry(attempt, err)
		if werr := b.Wait(ctx); werr != nil {
			return nil, err
		}
	}
}
