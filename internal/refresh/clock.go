package refresh

import (
	"context"
	"time"
)

// Clock abstracts time for the engine so tests can drive expiry, backoff and
// the proactive timer without waiting.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f on its own goroutine after d and returns a function
	// that cancels the call, reporting whether it was still pending.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
