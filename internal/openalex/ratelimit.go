package openalex

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token-bucket limiter shared by every client in a
// run, regardless of which goroutine issues the request. It is safe for
// concurrent use because the underlying rate.Limiter is goroutine-safe.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter sustaining ratePerSecond requests
// with a burst capacity of ceil(ratePerSecond), minimum one token.
func NewRateLimiter(ratePerSecond float64) *RateLimiter {
	burst := int(math.Ceil(ratePerSecond))
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until one token is available or the context is canceled.
// Every request attempt, including retries, consumes exactly one token.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow consumes a token without waiting if one is available.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetRate updates the sustained rate while preserving the burst size.
func (r *RateLimiter) SetRate(ratePerSecond float64) {
	r.limiter.SetLimit(rate.Limit(ratePerSecond))
}

// Tokens returns the number of tokens currently available.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
