package backend

import (
	"sync"

	"golang.org/x/time/rate"
)

// visitorLimiter hands out one token bucket per visitor key.
type visitorLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newVisitorLimiter(perSecond float64, burst int) *visitorLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &visitorLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether key may run another scan now. A nil limiter allows
// everything.
func (l *visitorLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
