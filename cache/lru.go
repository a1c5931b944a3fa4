package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type lruEntry struct {
	value     string
	expiresAt time.Time
}

// LRUCache is an in-process cache with a fixed number of entries. Entries
// older than ttl are dropped on read; a zero ttl keeps them until evicted.
type LRUCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, lruEntry]
	ttl   time.Duration
	now   func() time.Time
}

func NewLRUCache(size int, ttl time.Duration) (*LRUCache, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &LRUCache{cache: c, ttl: ttl, now: time.Now}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.cache.Remove(key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *LRUCache) Set(_ context.Context, key, value string) error {
	e := lruEntry{value: value}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.cache.Add(key, e)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *LRUCache) Len() int {
	return c.cache.Len()
}
