package tool

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter admits up to limit tool calls per window. The full allowance is
// available as a burst and refills evenly across the window.
type RateLimiter struct {
	lim *rate.Limiter
	now func() time.Time
}

// NewRateLimiter creates a limiter allowing limit calls per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		lim: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
		now: time.Now,
	}
}

// Allow consumes one call if available.
func (r *RateLimiter) Allow() bool {
	return r.lim.AllowN(r.now(), 1)
}
