package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLocked is returned by TryLock when the lock is already held.
var ErrLocked = errors.New("lock is already held")

const lockPrefix = "guidevault:lock:"

const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`

// TryLock attempts to acquire a distributed lock identified by key using
// SET NX PX. On success it returns an unlock function that must be called
// (typically via defer). If the lock is already held, ErrLocked is returned.
// The ttl bounds how long a crashed holder can block others.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error) {
	full := lockPrefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	// Only the holder's token may release; a background context lets the
	// release run after the caller's context is cancelled.
	return func() {
		_ = r.client.Eval(context.Background(), unlockScript, []string{full}, token).Err()
	}, nil
}
