package server

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(5, time.Minute)
	l.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		if _, ok := l.Allow("u1"); !ok {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}

	retryAfter, ok := l.Allow("u1")
	if ok {
		t.Fatal("6th request allowed, want denied")
	}
	if retryAfter != time.Minute {
		t.Errorf("retryAfter = %v, want 1m", retryAfter)
	}

	// Partway through the window the hint shrinks.
	current = current.Add(40 * time.Second)
	retryAfter, ok = l.Allow("u1")
	if ok {
		t.Fatal("request inside window allowed after limit")
	}
	if retryAfter != 20*time.Second {
		t.Errorf("retryAfter = %v, want 20s", retryAfter)
	}

	// A fresh window resets the count.
	current = current.Add(21 * time.Second)
	if _, ok := l.Allow("u1"); !ok {
		t.Error("request after window expiry denied, want allowed")
	}
}

func TestRateLimiterPerKey(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)

	if _, ok := l.Allow("u1"); !ok {
		t.Fatal("first request for u1 denied")
	}
	if _, ok := l.Allow("u1"); ok {
		t.Fatal("second request for u1 allowed, want denied")
	}
	if _, ok := l.Allow("u2"); !ok {
		t.Error("u2 should have its own window")
	}
}
