package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/traincal/scheduling-api/pkg/errors"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	locker := NewMemoryLocker(Options{AcquireWait: 50 * time.Millisecond, RetryDelay: 5 * time.Millisecond})

	release, err := locker.Acquire(context.Background(), "inst-1")
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), "inst-1")
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConcurrentModification.Code))

	release()

	release2, err := locker.Acquire(context.Background(), "inst-1")
	require.NoError(t, err)
	release2()
}

func TestMemoryLockerIndependentKeys(t *testing.T) {
	locker := NewMemoryLocker(Options{AcquireWait: 50 * time.Millisecond, RetryDelay: 5 * time.Millisecond})

	releaseA, err := locker.Acquire(context.Background(), "inst-a")
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locker.Acquire(context.Background(), "inst-b")
	require.NoError(t, err)
	releaseB()
}

func TestMemoryLockerWaitsForRelease(t *testing.T) {
	locker := NewMemoryLocker(Options{AcquireWait: time.Second, RetryDelay: 5 * time.Millisecond})

	release, err := locker.Acquire(context.Background(), "inst-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := locker.Acquire(context.Background(), "inst-1")
		assert.NoError(t, err)
		if err == nil {
			r()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()
}

func TestMemoryLockerContextCancel(t *testing.T) {
	locker := NewMemoryLocker(Options{AcquireWait: time.Second, RetryDelay: 10 * time.Millisecond})

	release, err := locker.Acquire(context.Background(), "inst-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = locker.Acquire(ctx, "inst-1")
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConcurrentModification.Code))
}
