package server

import (
	"time"

	"golang.org/x/time/rate"
)

// frameLimiter throttles inbound frames on one connection: capacity frames
// may arrive in a burst, refilled evenly over interval.
type frameLimiter struct {
	limiter *rate.Limiter
}

func newFrameLimiter(capacity int, interval time.Duration) *frameLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	every := interval / time.Duration(capacity)
	return &frameLimiter{limiter: rate.NewLimiter(rate.Every(every), capacity)}
}

func (fl *frameLimiter) allow() bool {
	return fl.limiter.Allow()
}
