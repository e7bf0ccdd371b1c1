package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const (
	licenseLockPrefix = "lock:license:"

	// DefaultLockTTL bounds how long a crashed holder can block a license.
	DefaultLockTTL = 10 * time.Second

	lockRetryMin = 5 * time.Millisecond
	lockRetryMax = 100 * time.Millisecond
)

// Lock errors.
var (
	ErrLockNotHeld = errors.New("lock not held")
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// LicenseLocker is a per-license mutual exclusion lock in Redis.
type LicenseLocker struct {
	cache *Cache
	ttl   time.Duration
}

// NewLicenseLocker creates a LicenseLocker. A non-positive ttl uses DefaultLockTTL.
func NewLicenseLocker(c *Cache, ttl time.Duration) *LicenseLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &LicenseLocker{cache: c, ttl: ttl}
}

// Lock blocks until the lock for name is acquired or ctx is done.
// The returned function releases the lock; it is safe to call after the TTL
// expired, in which case it returns ErrLockNotHeld.
func (l *LicenseLocker) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	key := lockKey(name)
	token := ulid.Make().String()
	wait := lockRetryMin

	for {
		ok, err := l.cache.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire license lock: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire license lock: %w", ctx.Err())
		case <-timer.C:
		}
		wait = min(wait*2, lockRetryMax)
	}

	unlock := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.cache.client, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release license lock: %w", err)
		}
		if n == 0 {
			return ErrLockNotHeld
		}
		return nil
	}

	return unlock, nil
}

// lockKey hashes the license key so raw keys are not stored in Redis.
func lockKey(name string) string {
	return licenseLockPrefix + hashValue(name)
}
