package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryConsumeRefills(t *testing.T) {
	b := NewTokenBucket(2, 1)
	clock := b.lastRefill
	b.now = func() time.Time { return clock }

	assert.True(t, b.TryConsume(1))
	assert.True(t, b.TryConsume(1))
	assert.False(t, b.TryConsume(1))

	clock = clock.Add(1500 * time.Millisecond)
	assert.InDelta(t, 1.5, b.Available(), 0.001)
	assert.True(t, b.TryConsume(1))

	clock = clock.Add(time.Hour)
	assert.InDelta(t, 2, b.Available(), 0.001)
}

func TestWaitHonoursContext(t *testing.T) {
	b := NewTokenBucket(1, 0.001)
	require.NoError(t, b.Wait(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Wait(ctx, 1), context.DeadlineExceeded)
}

func TestWaitReturnsOnceRefilled(t *testing.T) {
	b := NewTokenBucket(1, 50)
	require.True(t, b.TryConsume(1))

	start := time.Now()
	require.NoError(t, b.Wait(context.Background(), 1))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPerMinute(t *testing.T) {
	assert.Nil(t, PerMinute(0))
	b := PerMinute(30)
	require.NotNil(t, b)
	assert.InDelta(t, 0.5, b.refillRate, 0.0001)
	assert.InDelta(t, 1, b.maxTokens, 0.0001)
}
