package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/stratum/types"
)

// DefaultLockMaxWait is the default upper bound on lock acquisition polling.
const DefaultLockMaxWait = 30 * time.Second

// lockPollInterval is the delay between acquisition attempts in WithLock.
const lockPollInterval = 1 * time.Second

// ErrLockNotAcquired is returned by WithLock when the lock could not be
// acquired within the max wait. Lock contention is expected under multiple
// scheduler instances and is not an operator-facing error.
var ErrLockNotAcquired = errors.New("lock not acquired within max wait")

// releaseScript deletes the lock key only when it still holds our token.
// Prevents releasing a lock that expired and was re-taken by another owner.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Lock is a TTL-bounded mutually-exclusive claim stored in the queue store.
// At most one holder exists per key at any time; ownership is proven by a
// unique token so expiry can never cause a cross-owner release.
type Lock struct {
	client *Client
	key    string
	token  string
}

// NewLock creates a lock on the given key (prefix applied by the client).
func NewLock(client *Client, key string) *Lock {
	return &Lock{
		client: client,
		key:    client.Key(key),
	}
}

// Acquire attempts to take the lock with the given TTL via SET-NX-PX.
// Returns whether this holder won. The token is unique per acquisition.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	token := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), types.RandSuffix(8))
	ok, err := l.client.SetNX(ctx, l.key, token, ttl)
	if err != nil {
		return false, fmt.Errorf("lock acquire %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release frees the lock via the atomic compare-and-delete script.
// A lock that already expired and was re-taken by another holder is left
// untouched. Releasing an unheld lock is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	_, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token)
	l.token = ""
	if err != nil {
		return fmt.Errorf("lock release %s: %w", l.key, err)
	}
	return nil
}

// WithLock runs fn while holding the lock, polling acquisition every second
// up to maxWait. Returns ErrLockNotAcquired on timeout. The lock is released
// after fn returns, regardless of fn's error.
func (l *Lock) WithLock(ctx context.Context, ttl, maxWait time.Duration, fn func(ctx context.Context) error) error {
	if maxWait <= 0 {
		maxWait = DefaultLockMaxWait
	}
	deadline := time.Now().Add(maxWait)

	for {
		ok, err := l.Acquire(ctx, ttl)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %s", ErrLockNotAcquired, l.key, maxWait)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock wait canceled: %w", ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
		defer cancel()
		_ = l.Release(releaseCtx)
	}()

	return fn(ctx)
}
