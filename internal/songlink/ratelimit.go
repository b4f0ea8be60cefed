package songlink

import (
	"sync"
	"time"
)

// limiter enforces the resolver's strict global budget: a minimum gap
// between consecutive calls plus a rolling request window. Allow never
// blocks; a denied call means the caller skips this strategy entirely.
type limiter struct {
	mu       sync.Mutex
	minGap   time.Duration
	window   time.Duration
	maxCalls int
	lastCall time.Time
	calls    []time.Time
	now      func() time.Time
}

func newLimiter(minGap, window time.Duration, maxCalls int) *limiter {
	return &limiter{
		minGap:   minGap,
		window:   window,
		maxCalls: maxCalls,
		now:      time.Now,
	}
}

// Allow reports whether a call may proceed right now, and records it if so.
func (l *limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if !l.lastCall.IsZero() && now.Sub(l.lastCall) < l.minGap {
		return false
	}

	cutoff := now.Add(-l.window)
	kept := l.calls[:0]
	for _, t := range l.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.calls = kept

	if len(l.calls) >= l.maxCalls {
		return false
	}

	l.lastCall = now
	l.calls = append(l.calls, now)
	return true
}
