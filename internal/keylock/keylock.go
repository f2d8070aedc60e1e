// Package keylock serializes mutations keyed by source id. Rights updates,
// publish and unpublish for the same Track take the same key so they never
// interleave.
package keylock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"loopdeck/internal/config"
)

// Locker grants exclusive ownership of a key until the returned unlock
// function is called. Lock blocks until the key is free or ctx ends.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
	Close() error
}

// New builds the configured locker.
func New(cfg config.Lock) (Locker, error) {
	switch cfg.Backend {
	case "", config.LockLocal:
		return NewLocal(), nil
	case config.LockRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis lock backend: %w", err)
		}
		return NewRedis(client, time.Duration(cfg.TTLSeconds)*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

// With runs fn while holding key.
func With(ctx context.Context, locker Locker, key string, fn func() error) error {
	unlock, err := locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}
