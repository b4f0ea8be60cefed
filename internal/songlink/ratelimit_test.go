package songlink

import (
	"testing"
	"time"
)

func TestLimiterMinGap(t *testing.T) {
	now := time.Now()
	l := newLimiter(7*time.Second, 60*time.Second, 8)
	l.now = func() time.Time { return now }

	if !l.Allow() {
		t.Fatal("first call should pass")
	}
	if l.Allow() {
		t.Error("second call inside the gap should be denied")
	}

	now = now.Add(6 * time.Second)
	if l.Allow() {
		t.Error("call at 6s should still be denied")
	}

	now = now.Add(1 * time.Second)
	if !l.Allow() {
		t.Error("call at 7s should pass")
	}
}

func TestLimiterWindowCap(t *testing.T) {
	now := time.Now()
	l := newLimiter(0, 60*time.Second, 3)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("call %d should pass", i)
		}
		now = now.Add(time.Second)
	}
	if l.Allow() {
		t.Error("fourth call inside the window should be denied")
	}

	// Old calls age out of the rolling window.
	now = now.Add(61 * time.Second)
	if !l.Allow() {
		t.Error("call after the window rolled should pass")
	}
}

func TestLimiterDeniedCallNotRecorded(t *testing.T) {
	now := time.Now()
	l := newLimiter(7*time.Second, 60*time.Second, 8)
	l.now = func() time.Time { return now }

	l.Allow()
	l.Allow() // denied, must not reset the gap clock

	now = now.Add(7 * time.Second)
	if !l.Allow() {
		t.Error("gap should be measured from the last allowed call")
	}
}
