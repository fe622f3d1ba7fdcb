package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveRefillsOverTime(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(2)
	l.now = func() time.Time { return now }
	l.lastUpdate = now

	for i := 0; i < 2; i++ {
		_, ok := l.reserve()
		require.True(t, ok, "burst token %d", i)
	}

	wait, ok := l.reserve()
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	now = now.Add(500 * time.Millisecond)
	_, ok = l.reserve()
	assert.True(t, ok)
}

func TestFractionalRateHasBurstOfOne(t *testing.T) {
	l := New(0.5)
	_, ok := l.reserve()
	assert.True(t, ok)
	_, ok = l.reserve()
	assert.False(t, ok)
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(0.01)
	_, ok := l.reserve()
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
