// Package cache provides a small byte cache with per-entry TTLs backed by
// an in-process LRU or memcached.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/volunteerbot/core/logger"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: miss")

// Cache policy used by the application.
const (
	TTLMinute      = 60 * time.Second
	TTLQuarterHour = 900 * time.Second
	TTLHalfHour    = 1800 * time.Second
	TTLHour        = 3600 * time.Second
	TTLDay         = 86400 * time.Second
)

// Cache stores opaque values. A zero ttl means no expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GetJSON reads key and decodes it into a T.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, error) {
	var v T
	raw, err := c.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return v, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}

// Remember returns the cached value of key or loads, stores and returns it.
// Cache failures are logged and never hide a successful load.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	v, err := GetJSON[T](ctx, c, key)
	if err == nil {
		logger.Debug(ctx, logger.ComponentCache, "cache.hit", slog.String("key", key))
		return v, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		logger.Warn(ctx, logger.ComponentCache, "cache.get", slog.String("key", key), slog.String("err", err.Error()))
	}

	v, err = load(ctx)
	if err != nil {
		return v, err
	}
	if err := SetJSON(ctx, c, key, v, ttl); err != nil {
		logger.Warn(ctx, logger.ComponentCache, "cache.set", slog.String("key", key), slog.String("err", err.Error()))
	} else {
		logger.Debug(ctx, logger.ComponentCache, "cache.fill", slog.String("key", key), slog.Duration("ttl", ttl))
	}
	return v, nil
}

// Invalidate deletes keys, logging failures.
func Invalidate(ctx context.Context, c Cache, keys ...string) {
	if c == nil {
		return
	}
	for _, key := range keys {
		if err := c.Delete(ctx, key); err != nil {
			logger.Warn(ctx, logger.ComponentCache, "cache.delete", slog.String("key", key), slog.String("err", err.Error()))
		}
	}
}
