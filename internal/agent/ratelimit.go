package agent

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// maxTrackedUsers bounds the number of per-user limiters kept in memory.
const maxTrackedUsers = 10000

// RateLimiter throttles advising turns per student. The key is the user
// id only, so rotating tab session ids does not reset the budget.
type RateLimiter struct {
	mu       sync.Mutex
	every    rate.Limit
	burst    int
	limiters *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter allows requests turns per window, refilled evenly. A
// limiter idle for a full window is forgotten, which is safe because it
// would have refilled completely by then.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		every:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedUsers, nil, window),
	}
}

// Allow reports whether key may run another turn now.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	l, ok := r.limiters.Get(key)
	if !ok {
		l = rate.NewLimiter(r.every, r.burst)
	}
	// Re-adding slides the idle expiry.
	r.limiters.Add(key, l)
	r.mu.Unlock()
	return l.Allow()
}
