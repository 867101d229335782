// Package ratelimit implements the collaborator's per-key request
// limiter, keyed by client IP.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one golang.org/x/time/rate token bucket per key,
// each refilling at maxEvents/window and capped at maxEvents burst —
// equivalent to "maxEvents per window" while reusing the ecosystem's
// token-bucket limiter instead of hand-rolling a sliding-window
// counter. Access to the key map is serialised by a single mutex, the
// way internal/enginecache.Cache serialises its own map.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	maxEvents int
	window    time.Duration
}

func New(maxEvents int, window time.Duration) *Limiter {
	if maxEvents <= 0 {
		maxEvents = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limiters:  make(map[string]*rate.Limiter),
		maxEvents: maxEvents,
		window:    window,
	}
}

// Allow reports whether one more event for key fits inside its
// budget, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.window/time.Duration(l.maxEvents)), l.maxEvents)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
