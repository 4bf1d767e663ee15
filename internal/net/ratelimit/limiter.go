package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides per-host rate limiting using token bucket algorithm
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a limiter allowing rps requests per second per host
// with the given burst.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) getLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(l.limit(), l.burst)
	l.limiters[host] = limiter
	return limiter
}

func (l *Limiter) limit() rate.Limit {
	if l.rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(l.rps)
}

// Allow returns true if a request for the specified host is allowed now
func (l *Limiter) Allow(host string) bool {
	return l.getLimiter(host).Allow()
}

// Wait blocks until a request for the specified host is allowed or ctx is done
func (l *Limiter) Wait(ctx context.Context, host string) error {
	return l.getLimiter(host).Wait(ctx)
}

// SetRPS updates the rate of every host limiter
func (l *Limiter) SetRPS(rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rps = rps
	for _, limiter := range l.limiters {
		limiter.SetLimit(l.limit())
	}
}

// Stats returns a snapshot per host
func (l *Limiter) Stats() map[string]LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]LimiterStats, len(l.limiters))
	for host, limiter := range l.limiters {
		stats[host] = LimiterStats{
			Host:            host,
			RPS:             float64(limiter.Limit()),
			Burst:           limiter.Burst(),
			TokensAvailable: limiter.Tokens(),
		}
	}
	return stats
}

// LimiterStats represents statistics for a single host limiter
type LimiterStats struct {
	Host            string  `json:"host"`
	RPS             float64 `json:"rps"`
	Burst           int     `json:"burst"`
	TokensAvailable float64 `json:"tokens_available"`
}

// IsThrottled reports whether the next request would have to wait
func (s LimiterStats) IsThrottled() bool {
	return s.TokensAvailable < 1
}

// Delay is the interval between requests once the burst is spent
func (l *Limiter) Delay() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / l.rps)
}
