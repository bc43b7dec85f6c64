// Package ratelimit throttles control plane calls with a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alchemab/aab/internal/constants"
	"github.com/alchemab/aab/internal/logging"
)

// RateLimiter wraps a token bucket and warns when callers are held back for long.
// A nil *RateLimiter never blocks.
type RateLimiter struct {
	limiter      *rate.Limiter
	logger       *logging.Logger
	lastWarnTime time.Time
	mu           sync.Mutex
}

// NewRateLimiter creates a limiter allowing tokensPerSecond sustained calls
// with bursts up to burstSize. The bucket starts full.
func NewRateLimiter(tokensPerSecond float64, burstSize int, logger *logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.Nop()
	}
	if burstSize < 1 {
		burstSize = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(tokensPerSecond), burstSize),
		logger:  logger,
	}
}

// NewGatewayRateLimiter creates the default limiter for control plane calls.
func NewGatewayRateLimiter(logger *logging.Logger) *RateLimiter {
	return NewRateLimiter(constants.GatewayRatePerSec, constants.GatewayBurst, logger)
}

// Wait blocks until a token is available or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}

	r := rl.limiter.Reserve()
	if !r.OK() {
		return rl.limiter.Wait(ctx)
	}

	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	if delay > constants.RateLimitWarningThreshold {
		rl.mu.Lock()
		// Only warn every so often to avoid spam
		if time.Since(rl.lastWarnTime) > constants.RateLimitWarningInterval {
			rl.logger.Warn().Dur("wait", delay).Msgf("Rate limited: waiting ~%.1fs for API capacity...", delay.Seconds())
			rl.lastWarnTime = time.Now()
		}
		rl.mu.Unlock()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Tokens returns the number of tokens currently available (for testing/debugging).
func (rl *RateLimiter) Tokens() float64 {
	if rl == nil {
		return 0
	}
	return rl.limiter.Tokens()
}
