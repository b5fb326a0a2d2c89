package service

import (
	"sync"
	"time"
)

// RateLimiter bounds how often a booking reference may open a status stream
type RateLimiter interface {
	// Allow records an attempt and reports whether it is within the window
	Allow(bookingReference string) bool

	// Cleanup prunes windows with no recent attempts
	Cleanup()

	// ActiveWindows returns the number of references currently tracked
	ActiveWindows() int
}

// slidingWindowRateLimiter implements RateLimiter with an in-memory
// per-reference sliding window
type slidingWindowRateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
}

// NewRateLimiter creates a sliding window rate limiter allowing max attempts
// per window per booking reference
func NewRateLimiter(max int, window time.Duration) RateLimiter {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &slidingWindowRateLimiter{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
	}
}

// Allow records an attempt and reports whether it is within the window
func (l *slidingWindowRateLimiter) Allow(bookingReference string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.attempts[bookingReference][:0]
	for _, t := range l.attempts[bookingReference] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.max {
		l.attempts[bookingReference] = recent
		return false
	}

	l.attempts[bookingReference] = append(recent, now)
	return true
}

// Cleanup prunes windows with no recent attempts
func (l *slidingWindowRateLimiter) Cleanup() {
	cutoff := time.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for ref, times := range l.attempts {
		live := false
		for _, t := range times {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.attempts, ref)
		}
	}
}

// ActiveWindows returns the number of references currently tracked
func (l *slidingWindowRateLimiter) ActiveWindows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}
