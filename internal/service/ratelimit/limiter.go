package ratelimit

import (
	"sync"
	"time"
)

// Idle buckets are pruned so one-off clients do not accumulate forever.
const (
	idleAfter     = 10 * time.Minute
	pruneInterval = time.Minute
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter is a per-key token bucket guarding the query endpoints. Keys are
// client IP plus endpoint, so a heavy simulate user cannot starve heatmap
// reads from the same address.
type Limiter struct {
	mu        sync.Mutex
	m         map[string]*bucket
	lastPrune time.Time
}

func New() *Limiter {
	return &Limiter{m: make(map[string]*bucket), lastPrune: time.Now()}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > pruneInterval {
		l.pruneLocked(now)
	}

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (l *Limiter) pruneLocked(now time.Time) {
	for k, b := range l.m {
		if now.Sub(b.last) > idleAfter {
			delete(l.m, k)
		}
	}
	l.lastPrune = now
}
