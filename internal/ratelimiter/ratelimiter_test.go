package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReturnsImmediatelyWhenUnlimited(t *testing.T) {
	l := New(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Acquire(ctx, 10_000_000))
}

func TestAcquireConsumesBurstWithoutWaiting(t *testing.T) {
	l := New(1000, 5000)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, 4000))
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestAcquireWaitsForRefillOnceBurstExhausted(t *testing.T) {
	l := New(2000, 1000)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, l.Acquire(ctx, 1000)) // drains the burst
	start := time.Now()
	require.NoError(t, l.Acquire(ctx, 1000))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestAcquireReturnsContextErrorWhenCancelled(t *testing.T) {
	l := New(1, 1) // one byte per second, guarantees a wait
	l.Acquire(context.Background(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, 1000)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSetLimitGrowsTokensWhenBurstIncreases(t *testing.T) {
	l := New(1000, 1000)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Acquire(ctx, 1000)) // drain

	l.SetLimit(1000, 5000)
	assert.Equal(t, uint64(1000), l.Limit())

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, 4000))
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}
