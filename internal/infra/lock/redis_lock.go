package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"kartarkiv/internal/app"
)

const DefaultReminderPassKey = "kartarkiv:invoice-reminder-pass"

// RedisPassLocker serializes reminder passes across worker processes.
type RedisPassLocker struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
}

// NewRedisClient parses url (redis://...) and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// NewRedisPassLocker returns a locker whose lock expires after ttl if the
// holder dies mid-pass. ttl should exceed the longest expected pass.
func NewRedisPassLocker(client redislock.RedisClient, key string, ttl time.Duration) *RedisPassLocker {
	return &RedisPassLocker{locker: redislock.New(client), key: key, ttl: ttl}
}

func (l *RedisPassLocker) Acquire(ctx context.Context) (func(context.Context) error, error) {
	held, err := l.locker.Obtain(ctx, l.key, l.ttl, nil)
	if err != nil {
		return nil, obtainError(l.key, err)
	}
	return func(ctx context.Context) error {
		return releaseError(held.Release(ctx))
	}, nil
}

// obtainError maps a busy lock to app.ErrLockNotObtained so the reminder
// service can tell "someone else is running" from a broken Redis.
func obtainError(key string, err error) error {
	if errors.Is(err, redislock.ErrNotObtained) {
		return app.ErrLockNotObtained
	}
	return fmt.Errorf("failed to obtain redis lock %s: %w", key, err)
}

// releaseError drops ErrLockNotHeld: the lock expired or was taken over, and
// there is nothing left to release.
func releaseError(err error) error {
	if err == nil || errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
