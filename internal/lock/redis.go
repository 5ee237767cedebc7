package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token, so an
// expired holder cannot release a lock someone else has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Option func(*RedisLocker)

// WithSleep replaces the wait between acquisition attempts.
func WithSleep(sleep SleepFunc) Option {
	return func(l *RedisLocker) {
		l.sleep = sleep
	}
}

// WithTokens replaces the token generator.
func WithTokens(newToken func() string) Option {
	return func(l *RedisLocker) {
		l.newToken = newToken
	}
}

func NewRedisLocker(client *redis.Client, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client:   client,
		sleep:    sleepContext,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type RedisLocker struct {
	client   *redis.Client
	sleep    SleepFunc
	newToken func() string
}

// Acquire tries SET NX PX up to maxRetries times, sleeping retryDelay
// between attempts. acquired is false with a nil error when every attempt
// found the key held.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (*Lock, bool, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	token := l.newToken()

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("redis set nx failed: %w", err)
		}
		if ok {
			return &Lock{Key: key, Token: token}, true, nil
		}
		if attempt == maxRetries {
			break
		}
		if err := l.sleep(ctx, retryDelay); err != nil {
			return nil, false, err
		}
	}

	return nil, false, nil
}

func (l *RedisLocker) Release(ctx context.Context, lk *Lock) error {
	if lk == nil {
		return ErrLockNotHeld
	}
	deleted, err := releaseScript.Run(ctx, l.client, []string{lk.Key}, lk.Token).Int()
	if errors.Is(err, redis.Nil) {
		return ErrLockNotHeld
	}
	if err != nil {
		return fmt.Errorf("redis release failed: %w", err)
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// ProductKey is the lock key guarding checkout of one product.
func ProductKey(productID int64) string {
	return fmt.Sprintf("lock:product:%d", productID)
}
