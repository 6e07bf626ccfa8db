package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// keyNamespace scopes every lock so replicas of other services sharing the
// redis instance never collide with marketplace jobs.
const keyNamespace = "digimart:"

var (
	ErrLockUnavailable = errors.New("ratelimit: lock backend not configured")
	ErrInvalidLockKey  = errors.New("ratelimit: lock key is empty")
	ErrInvalidLockTTL  = errors.New("ratelimit: lock ttl must be positive")
)

// compare-and-delete so a replica whose ttl lapsed cannot free a lock
// another replica has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived advisory locks for background jobs. Holding
// a lock only avoids duplicate provider calls; state transitions stay
// guarded by their own compare-and-swap updates.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// TryLock returns the holder token when the lock was taken. A lock held by
// someone else reports false without error.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockUnavailable
	}
	if key == "" {
		return "", false, ErrInvalidLockKey
	}
	if ttl <= 0 {
		return "", false, ErrInvalidLockTTL
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyNamespace+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{keyNamespace + key}, token).Err()
}
