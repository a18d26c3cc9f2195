package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	last time.Time
}

// Limiter keeps one token bucket per key (client IP, API key).
type Limiter struct {
	mu       sync.Mutex
	m        map[string]*bucket
	capacity int
	refill   rate.Limit
	idleTTL  time.Duration
	now      func() time.Time
}

// New creates a limiter allowing bursts of capacity and refilling
// refillPerSec tokens per second. Buckets idle for longer than ten minutes
// are dropped on the next sweep.
func New(capacity int, refillPerSec float64) *Limiter {
	return &Limiter{
		m:        make(map[string]*bucket),
		capacity: capacity,
		refill:   rate.Limit(refillPerSec),
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	b, ok := l.m[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.refill, l.capacity)}
		l.m[key] = b
	}
	b.last = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

// Sweep drops buckets that have not been used within the idle window.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.m {
		if b.last.Before(cutoff) {
			delete(l.m, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
