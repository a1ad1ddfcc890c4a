package upload

import (
	"context"
	"time"
)

// Clock abstracts time so retry backoff is testable without wall-clock waits
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err() in
	// the latter case
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RealClock returns a Clock backed by the system clock
func RealClock() Clock { return realClock{} }

// RetryPolicy controls per-chunk retry behaviour
type RetryPolicy struct {
	// MaxAttempts is the total number of send attempts per chunk
	MaxAttempts int
	// Backoff is the base delay; the delay before attempt n+1 is Backoff * n
	Backoff time.Duration
}

// DefaultRetryPolicy matches the pipeline defaults: 3 attempts with a
// linearly growing backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Second,
	}
}

// Delay returns the backoff before the next attempt, scaled by how many
// attempts have already failed
func (p RetryPolicy) Delay(failedAttempts int) time.Duration {
	if failedAttempts < 1 {
		failedAttempts = 1
	}
	return p.Backoff * time.Duration(failedAttempts)
}
