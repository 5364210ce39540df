package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisStockCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStockCache(client), mr
}

func TestRedisStockCache(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	_, err := c.Get(ctx, "shirt")
	assert.ErrorIs(t, err, ErrCacheMiss)

	info := StockInfo{Sizes: []SizeStock{{"M", 2}}, HasSizes: true, TotalStock: 2}
	require.NoError(t, c.Set(ctx, "shirt", info))

	got, err := c.Get(ctx, "shirt")
	require.NoError(t, err)
	assert.Equal(t, info, got)

	ttl := mr.TTL("stock:shirt")
	assert.GreaterOrEqual(t, ttl, 30*time.Second)
	assert.Less(t, ttl, 40*time.Second)

	require.NoError(t, c.Delete(ctx, "shirt", "mug"))
	_, err = c.Get(ctx, "shirt")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStockCache_Corrupt(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("stock:shirt", "{"))

	_, err := c.Get(context.Background(), "shirt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
