package transcode

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds concurrent transcodes. Waiters are served in FIFO
// order, so a burst of jobs drains in submission order instead of
// starving early arrivals.
type Limiter struct {
	sem *semaphore.Weighted
}

func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

func (l *Limiter) Release() {
	l.sem.Release(1)
}
