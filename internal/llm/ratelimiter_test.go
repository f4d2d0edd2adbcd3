package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, rpm int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(rpm)
	t.Cleanup(rl.Close)
	return rl
}

func TestRateLimiterAllowsUpToBudget(t *testing.T) {
	rl := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(ctx))
	}

	// Bucket exhausted: the next wait blocks until refill or cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestRateLimiterErrorBackoff(t *testing.T) {
	rl := newTestLimiter(t, 10)
	ctx := context.Background()

	rl.RecordError()
	err := rl.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoff active")

	rl.RecordSuccess()
	assert.NoError(t, rl.Wait(ctx))
}

func TestRateLimiterBackoffGrows(t *testing.T) {
	rl := newTestLimiter(t, 10)

	rl.RecordError()
	first := rl.backoffRemaining()
	rl.RecordError()
	second := rl.backoffRemaining()

	assert.Greater(t, second, first)
}

func TestRateLimiterBackoffCapped(t *testing.T) {
	rl := newTestLimiter(t, 10)

	for i := 0; i < 20; i++ {
		rl.RecordError()
	}
	assert.LessOrEqual(t, rl.backoffRemaining(), maxErrorBackoff)
}

func TestRateLimiterZeroBudgetDefaults(t *testing.T) {
	rl := newTestLimiter(t, 0)
	assert.Equal(t, 60, rl.requestsPerMinute)
	assert.NoError(t, rl.Wait(context.Background()))
}

func TestRateLimiterCloseIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(2)
	rl.Close()
	rl.Close()

	// Tokens already in the bucket remain usable after Close.
	assert.NoError(t, rl.Wait(context.Background()))
}
