package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const maxErrorBackoff = 300 * time.Second

// RateLimiter gates outbound model calls with a token bucket and applies
// exponential backoff after consecutive API errors.
type RateLimiter struct {
	requestsPerMinute int
	tokens            chan struct{}
	done              chan struct{}
	closeOnce         sync.Once

	mu                sync.Mutex
	consecutiveErrors int
	lastErrorTime     time.Time
	backoffDuration   time.Duration
}

// NewRateLimiter creates a limiter allowing rpm requests per minute.
func NewRateLimiter(rpm int) *RateLimiter {
	if rpm <= 0 {
		rpm = 60
	}

	rl := &RateLimiter{
		requestsPerMinute: rpm,
		tokens:            make(chan struct{}, rpm),
		done:              make(chan struct{}),
	}
	for i := 0; i < rpm; i++ {
		rl.tokens <- struct{}{}
	}

	go rl.refillLoop()

	return rl
}

// Wait blocks until a token is available or the context is cancelled. It
// fails fast while an error backoff window is active.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if remaining := rl.backoffRemaining(); remaining > 0 {
		return fmt.Errorf("rate limited: backoff active for %s", remaining)
	}

	select {
	case <-rl.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordSuccess resets the error backoff.
func (rl *RateLimiter) RecordSuccess() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.consecutiveErrors = 0
	rl.backoffDuration = 0
}

// RecordError notes a failed API call and grows the backoff window, capped
// at maxErrorBackoff.
func (rl *RateLimiter) RecordError() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.consecutiveErrors++
	rl.lastErrorTime = time.Now()

	backoff := time.Duration(1<<uint(rl.consecutiveErrors)) * time.Second
	if backoff > maxErrorBackoff {
		backoff = maxErrorBackoff
	}
	rl.backoffDuration = backoff
}

func (rl *RateLimiter) backoffRemaining() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.backoffDuration == 0 {
		return 0
	}
	remaining := rl.backoffDuration - time.Since(rl.lastErrorTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Close stops the refill goroutine. Safe to call more than once; the
// limiter must not be used afterwards.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) refillLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for i := 0; i < rl.requestsPerMinute; i++ {
				select {
				case rl.tokens <- struct{}{}:
				default:
					// Bucket already full.
				}
			}
		case <-rl.done:
			return
		}
	}
}
