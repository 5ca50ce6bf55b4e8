package lock

import (
	"context"
	"time"
)

// Locker serializes the check-and-commit section of a booking around a
// resource key (one key per instructor). Acquire blocks until the lock is
// held, the wait budget is exhausted, or ctx is cancelled; it never blocks
// indefinitely.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Options tune acquisition behaviour shared by implementations.
type Options struct {
	// TTL bounds how long a held lock survives a crashed holder.
	TTL time.Duration
	// AcquireWait is the total budget spent attempting to take the lock.
	AcquireWait time.Duration
	// RetryDelay is the pause between acquisition attempts.
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 10 * time.Second
	}
	if o.AcquireWait <= 0 {
		o.AcquireWait = 3 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 100 * time.Millisecond
	}
	return o
}
