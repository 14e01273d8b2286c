package planner

import (
	"context"
	"sync"
	"time"

	"toolhost/internal/domain"
)

// RateLimiter is a token bucket for throttling planner API calls.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastTime time.Time
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 10
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &RateLimiter{
		tokens:   float64(maxBurst),
		max:      float64(maxBurst),
		rate:     ratePerMinute / 60.0,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.tokens = min(rl.max, rl.tokens+now.Sub(rl.lastTime).Seconds()*rl.rate)
		rl.lastTime = now

		if rl.tokens >= 1.0 {
			rl.tokens -= 1.0
			rl.mu.Unlock()
			return nil
		}
		waitSec := (1.0 - rl.tokens) / rl.rate
		rl.mu.Unlock()

		timer := time.NewTimer(time.Duration(waitSec * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Limited throttles a planner through a shared token bucket. A caller
// whose deadline expires while queued fails without reaching the planner.
type Limited struct {
	planner domain.Planner
	limiter *RateLimiter
}

func NewLimited(p domain.Planner, limiter *RateLimiter) *Limited {
	return &Limited{planner: p, limiter: limiter}
}

func (l *Limited) Name() string { return l.planner.Name() }

// Model reports the wrapped planner's model, if it has one.
func (l *Limited) Model() string {
	if m, ok := l.planner.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

func (l *Limited) Decide(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.planner.Decide(ctx, prompt)
}

var _ domain.Planner = (*Limited)(nil)
