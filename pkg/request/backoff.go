package request

import (
	"context"
	"time"
)

// Backoff is an exponential retry schedule without jitter: Base, 2*Base, 4*Base, ...
type Backoff struct {
	Base       time.Duration
	MaxRetries int
}

// Delay returns the wait before retry number retry (0-based).
func (b Backoff) Delay(retry int) time.Duration {
	retry = min(max(retry, 0), 30)
	return b.Base << uint(retry)
}

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
