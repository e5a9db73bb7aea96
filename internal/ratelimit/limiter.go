// Package ratelimit paces request issuance with a token bucket.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket. A zero rate disables limiting.
type RateLimiter struct {
	limiter   *rate.Limiter
	unlimited bool
}

// NewRateLimiter allows rps requests per second with a burst of rps.
func NewRateLimiter(rps int) *RateLimiter {
	return NewLimiter(float64(rps), rps)
}

// NewLimiter allows rps requests per second with the given burst. A burst
// below one is raised to one so a positive rate can make progress.
func NewLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return &RateLimiter{unlimited: true}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.unlimited {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed now without waiting.
func (r *RateLimiter) Allow() bool {
	if r.unlimited {
		return true
	}
	return r.limiter.Allow()
}
