package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const maxKeyLen = 250

// Memcached is a Cache backed by a memcached cluster.
type Memcached struct {
	client *memcache.Client
	prefix string
}

// NewMemcached connects to servers ("host:port"). Keys are namespaced with prefix.
func NewMemcached(prefix string, timeout time.Duration, servers ...string) (*Memcached, error) {
	if len(servers) == 0 {
		return nil, errors.New("cache: no memcached servers")
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &Memcached{client: client, prefix: prefix}, nil
}

// Ping checks that every server answers.
func (m *Memcached) Ping() error {
	return m.client.Ping()
}

func (m *Memcached) Get(_ context.Context, key string) ([]byte, error) {
	item, err := m.client.Get(m.key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (m *Memcached) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        m.key(key),
		Value:      value,
		Expiration: int32(ttl / time.Second),
	})
}

func (m *Memcached) Delete(_ context.Context, key string) error {
	err := m.client.Delete(m.key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// key applies the prefix and hashes keys memcached would reject.
func (m *Memcached) key(key string) string {
	full := m.prefix + key
	if len(full) <= maxKeyLen && !strings.ContainsFunc(full, invalidKeyRune) {
		return full
	}
	sum := sha1.Sum([]byte(full))
	return m.prefix + "h:" + hex.EncodeToString(sum[:])
}

func invalidKeyRune(r rune) bool {
	return r <= ' ' || r == 0x7f
}
