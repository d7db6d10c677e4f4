package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Redis is a distributed keyed lock backed by redislock.
type Redis struct {
	client *redislock.Client
	wait   time.Duration
}

// NewRedis wraps an existing redis client.
func NewRedis(rdb redislock.RedisClient, wait time.Duration) *Redis {
	return &Redis{
		client: redislock.New(rdb),
		wait:   wait,
	}
}

// Connect creates a redis client from the configuration and verifies it with a ping.
// It returns a nil Locker when no address is configured.
func Connect(cfg Config) (*Redis, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedis(rdb, cfg.Wait()), rdb, nil
}

// Obtain implements Locker.
func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	if r.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.wait)
		defer cancel()
	}

	l, err := r.client.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return &redisLock{lock: l}, nil
}

type redisLock struct {
	lock *redislock.Lock
	once sync.Once
	err  error
}

func (l *redisLock) Release(ctx context.Context) error {
	l.once.Do(func() {
		err := l.lock.Release(ctx)
		if err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.err = fmt.Errorf("failed to release lock %s: %w", l.lock.Key(), err)
		}
	})
	return l.err
}
