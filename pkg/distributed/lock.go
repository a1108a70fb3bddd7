package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only when this holder still owns it.
const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// Lock is a Redis-backed mutual exclusion lock. Each instance holds the lock
// under a random value so an expired lock can never be released by a
// later holder.
type Lock struct {
	client    *redis.Client
	key       string
	value     string
	ttl       time.Duration
	stopRenew chan struct{}
}

// NewLock creates a lock on the given key.
func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	b := make([]byte, 16)
	rand.Read(b)
	return &Lock{
		client:    client,
		key:       key,
		value:     hex.EncodeToString(b),
		ttl:       ttl,
		stopRenew: make(chan struct{}),
	}
}

// TryAcquire attempts to take the lock without blocking. On success a renewal
// goroutine keeps the lock alive until Release or context cancellation.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		go l.renew(ctx)
	}
	return acquired, nil
}

// Release gives the lock up if this instance still holds it.
func (l *Lock) Release(ctx context.Context) error {
	close(l.stopRenew)

	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result.(int64) == 0 {
		return fmt.Errorf("lock was not held by this instance")
	}
	return nil
}

func (l *Lock) renew(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			current, err := l.client.Get(ctx, l.key).Result()
			if err != nil {
				return // released or Redis unreachable, stop renewing
			}
			if current != l.value {
				return // someone else holds it now
			}
			l.client.Expire(ctx, l.key, l.ttl)
		case <-l.stopRenew:
			return
		case <-ctx.Done():
			return
		}
	}
}
