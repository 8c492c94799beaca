package http

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// rateLimiter is a fixed-window counter of inbound frames per connection.
type rateLimiter struct {
	mu      sync.Mutex
	clock   clock.Clock
	limit   int
	window  time.Duration
	start   time.Time
	counter int
}

func newRateLimiter(clk clock.Clock, limit int) *rateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &rateLimiter{
		clock:  clk,
		limit:  limit,
		window: time.Minute,
		start:  clk.Now(),
	}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if now.Sub(r.start) >= r.window {
		r.start = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
