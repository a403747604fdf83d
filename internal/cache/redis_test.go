package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb, time.Minute), mr
}

func TestSetThenGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "g1", 3, "araba")
	require.False(t, ok)

	want := []string{"User Input: a\nJSON Output: {}"}
	c.Set(ctx, "g1", 3, "araba", want)

	got, ok := c.Get(ctx, "g1", 3, "araba")
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = c.Get(ctx, "g1", 2, "araba")
	assert.False(t, ok, "k is part of the key")
	_, ok = c.Get(ctx, "g2", 3, "araba")
	assert.False(t, ok, "a new generation misses")
}

func TestEntriesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "g1", 3, "q", []string{"x"})
	mr.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, "g1", 3, "q")
	assert.False(t, ok)
}

func TestCorruptValueMisses(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set(c.key("g1", 3, "q"), "not json"))

	_, ok := c.Get(context.Background(), "g1", 3, "q")
	assert.False(t, ok)
}

func TestInvalidateAll(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, "g1", 3, "a", []string{"x"})
	c.Set(ctx, "g1", 3, "b", []string{"y"})
	require.NoError(t, mr.Set("unrelated", "keep"))

	c.InvalidateAll(ctx)

	assert.Equal(t, []string{"unrelated"}, mr.Keys())
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "://nope", time.Minute)
	require.Error(t, err)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := Dial(context.Background(), "redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}
