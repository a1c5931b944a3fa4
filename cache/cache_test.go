package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k := Key([]byte("photo"))
	assert.Len(t, k, 64)
	assert.Equal(t, k, Key([]byte("photo")))
	assert.NotEqual(t, k, Key([]byte("photo2")))
}

func TestLRUCache(t *testing.T) {
	c, err := NewLRUCache(2, time.Minute)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", "00ff"))
	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "00ff", v)

	require.NoError(t, c.Set(ctx, "b", "0f0f"))
	require.NoError(t, c.Set(ctx, "c", "f0f0"))
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok, "least recently used entry is evicted")

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "c")
	assert.False(t, ok, "expired")
	assert.Equal(t, 1, c.Len())
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCache(RedisConfig{Address: mr.Addr(), TTL: time.Hour})
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "c3d4e5f60718293a"))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c3d4e5f60718293a", v)
	assert.True(t, mr.Exists(keyPrefix+"k"))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"k"))

	mr.FastForward(2 * time.Hour)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCache(RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, "none", 0, 0, RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = Open(ctx, "lru", 16, time.Minute, RedisConfig{})
	require.NoError(t, err)
	assert.IsType(t, &LRUCache{}, c)

	mr := miniredis.RunT(t)
	c, err = Open(ctx, "redis", 0, time.Minute, RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	require.IsType(t, &RedisCache{}, c)
	assert.Equal(t, time.Minute, c.(*RedisCache).ttl)
	_ = c.(*RedisCache).Close()

	_, err = Open(ctx, "memcached", 0, 0, RedisConfig{})
	assert.Error(t, err)
}
