package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ShipmentImportLockKey builds redis keys serializing confirms of one wizard session.
func ShipmentImportLockKey(sessionID string) string {
	return fmt.Sprintf("lock:shipment-import:%s", sessionID)
}

// ImportOrderLockKey builds redis keys serializing import-order wizard confirms.
func ImportOrderLockKey(sessionID string) string {
	return fmt.Sprintf("lock:import-order:%s", sessionID)
}

// Locker runs critical sections under a redis lock.
type Locker struct {
	client *redislock.Client
}

// NewLocker wraps a redis client.
func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: redislock.New(client)}
}

// WithLock obtains key for ttl, runs fn and releases the lock. A held lock
// yields ErrLocked without retrying.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLocked
	}
	if err != nil {
		return fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
