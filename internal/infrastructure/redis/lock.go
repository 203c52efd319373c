package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Only the owner may release.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock is a single-owner Redis lock. The worker uses it so that
// only one instance refreshes the OAuth token at a time.
type DistributedLock struct {
	client   redis.Cmdable
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    lockKey(key),
		value:  uuid.NewString(),
		ttl:    ttl,
	}
}

func lockKey(name string) string {
	return "lock:" + name
}

// Acquire tries once. A lock held by someone else is (false, nil).
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", domainErrors.ErrLockAcquisitionFailed, err)
	}
	l.acquired = ok
	return ok, nil
}

func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	val, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.acquired = false
	if val == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// Locker hands out DistributedLocks bound to one client.
type Locker struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewLocker(client redis.Cmdable, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// WithLock runs fn while holding the named lock. held is false when another
// owner had it and fn did not run. A lock that expired before fn returned
// is reported as ErrLockNotHeld, joined with fn's own error.
func (k *Locker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) (held bool, err error) {
	lock := NewDistributedLock(k.client, name, k.ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()

	return true, fn(ctx)
}
