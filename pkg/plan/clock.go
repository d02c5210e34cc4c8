package plan

import (
	"context"
	"time"
)

// Clock abstracts the time source and blocking sleep so the polling loop can
// be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for the given duration or until the context is done,
	// returning the context's error in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall-clock implementation used by default.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
