package cron

import (
	"context"
	"time"

	"github.com/angelmondragon/kitchenstock-backend/pkg/redis"
)

const defaultLockTTL = 4 * time.Minute

// Lock coordinates exclusive cron runs across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// NewRedisLock builds the cron cycle lock. A non-positive ttl falls back to
// a default shorter than the usual run interval.
func NewRedisLock(store redis.LockStore, key string, ttl time.Duration) (Lock, error) {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return redis.NewLock(store, key, ttl)
}
