package handlers

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const limiterCacheSize = 10_000

// keyedLimiter keeps one token bucket per user. Buckets of users not seen
// recently are evicted.
type keyedLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[int, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// newKeyedLimiter allows perMinute events per user with the given burst.
// A non-positive perMinute disables limiting.
func newKeyedLimiter(perMinute, burst int) *keyedLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	cache, _ := lru.New[int, *rate.Limiter](limiterCacheSize)
	return &keyedLimiter{
		limiters: cache,
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

func (l *keyedLimiter) Allow(userID int) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters.Get(userID)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(userID, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}
