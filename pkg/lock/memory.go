package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/traincal/scheduling-api/pkg/errors"
)

// MemoryLocker is an in-process Locker used in tests and in single-instance
// deployments without Redis.
type MemoryLocker struct {
	opts Options

	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker builds an in-memory locker.
func NewMemoryLocker(opts Options) *MemoryLocker {
	return &MemoryLocker{opts: opts.withDefaults(), held: make(map[string]struct{})}
}

// Acquire takes the key, polling within the wait budget.
func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	deadline := time.Now().Add(l.opts.AcquireWait)

	for {
		if l.tryAcquire(key) {
			return func() { l.release(key) }, nil
		}

		if time.Now().After(deadline) {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, fmt.Sprintf("instructor %s is being booked by another request", key))
		}

		timer := time.NewTimer(l.opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, appErrors.Wrap(ctx.Err(), appErrors.ErrConcurrentModification.Code, appErrors.ErrConcurrentModification.Status, "lock acquisition cancelled")
		case <-timer.C:
		}
	}
}

func (l *MemoryLocker) tryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *MemoryLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
