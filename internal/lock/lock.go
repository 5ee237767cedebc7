package lock

import (
	"context"
	"errors"
	"time"
)

var ErrLockNotHeld = errors.New("lock not held")

// Lock identifies one successful acquisition of a resource key.
type Lock struct {
	Key   string
	Token string
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
