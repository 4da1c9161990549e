package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type lruEntry struct {
	value   []byte
	expires time.Time
}

// LRU is an in-process Cache bounded by entry count.
type LRU struct {
	items *lru.Cache[string, lruEntry]
	now   func() time.Time
}

// NewLRU returns an LRU holding at most size entries.
func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		size = 1024
	}
	items, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRU{items: items, now: time.Now}, nil
}

func (c *LRU) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := c.items.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.items.Remove(key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (c *LRU) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := lruEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.items.Add(key, e)
	return nil
}

func (c *LRU) Delete(_ context.Context, key string) error {
	c.items.Remove(key)
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *LRU) Len() int { return c.items.Len() }
