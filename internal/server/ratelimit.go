package server

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-key request counter. Windows are not
// sliding: the count resets when a request arrives after the window expires.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*windowEntry
}

type windowEntry struct {
	start time.Time
	count int
}

// NewRateLimiter creates a limiter allowing limit requests per window per key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		entries: make(map[string]*windowEntry),
	}
}

// Allow records a request for key. When the limit is exceeded it returns
// false plus the time remaining until the window resets.
func (l *RateLimiter) Allow(key string) (retryAfter time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.entries[key]
	if e == nil || now.Sub(e.start) >= l.window {
		l.entries[key] = &windowEntry{start: now, count: 1}
		return 0, true
	}

	if e.count >= l.limit {
		return e.start.Add(l.window).Sub(now), false
	}
	e.count++
	return 0, true
}
