package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/traincal/scheduling-api/pkg/errors"
)

// releaseScript deletes the lock key only when it still holds our token, so
// an expired lock re-acquired by another caller is never released by us.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// RedisLocker implements Locker on top of SET NX PX.
type RedisLocker struct {
	client *redis.Client
	opts   Options
}

// NewRedisLocker builds a Redis-backed locker.
func NewRedisLocker(client *redis.Client, opts Options) *RedisLocker {
	return &RedisLocker{client: client, opts: opts.withDefaults()}
}

// Acquire takes the lock for key, retrying within the configured wait budget.
// Exhausting the budget surfaces CONCURRENT_MODIFICATION so callers can retry
// the whole operation.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate lock token")
	}

	redisKey := "lock:instructor:" + key
	deadline := time.Now().Add(l.opts.AcquireWait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.opts.TTL).Result()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "lock acquisition failed")
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = l.client.Eval(releaseCtx, releaseScript, []string{redisKey}, token).Err()
			}, nil
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

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
