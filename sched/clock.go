package sched

import (
	"context"
	"time"
)

// Clock abstracts wall time so the scheduler can be driven by virtual time
// in tests. All instants are UTC.
type Clock interface {
	Now() time.Time
	// SleepUntil blocks until t has passed or ctx is cancelled. It returns
	// nil when the deadline elapsed and the context error on cancellation.
	SleepUntil(ctx context.Context, t time.Time) error
}

// NewClock returns a Clock backed by the system clock.
func NewClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) SleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
