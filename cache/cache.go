// Package cache stores query image fingerprints keyed by the digest of the
// uploaded bytes, so repeated uploads of one photo skip decoding.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Cache maps content keys to hex fingerprints.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Key returns the cache key for an uploaded image.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Open builds the cache for backend: "lru", "redis", or "none" (nil cache).
func Open(ctx context.Context, backend string, size int, ttl time.Duration, redisCfg RedisConfig) (Cache, error) {
	switch backend {
	case "", "none":
		return nil, nil
	case "lru":
		c, err := NewLRUCache(size, ttl)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "redis":
		redisCfg.TTL = ttl
		c := NewRedisCache(redisCfg)
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", backend)
}
