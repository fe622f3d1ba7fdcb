package ingest

import (
	"context"
	"math/rand"
	"time"
)

const (
	InitialBackoff = 1 * time.Second
	MaxBackoff     = 60 * time.Second
	BackoffFactor  = 2.0
	JitterPercent  = 0.2
)

type backoff struct {
	initial, max time.Duration
	current      time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, current: initial}
}

func (b *backoff) reset() {
	b.current = b.initial
}

// wait sleeps for the current delay plus jitter, then grows the delay.
// A positive floor (e.g. a server retry-after) overrides shorter delays.
// Returns false if ctx ended first.
func (b *backoff) wait(ctx context.Context, floor time.Duration) bool {
	d := b.current + time.Duration(float64(b.current)*JitterPercent*(rand.Float64()*2-1))
	if d < floor {
		d = floor
	}

	t := time.NewTimer(d)
	defer t.Stop()

	b.current = time.Duration(float64(b.current) * BackoffFactor)
	if b.current > b.max {
		b.current = b.max
	}

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
