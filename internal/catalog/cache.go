package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type StockCache interface {
	Get(ctx context.Context, productID string) (StockInfo, error)
	Set(ctx context.Context, productID string, info StockInfo) error
	Delete(ctx context.Context, productIDs ...string) error
}

type RedisStockCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisStockCache(client *redis.Client) *RedisStockCache {
	return &RedisStockCache{
		client:  client,
		baseTTL: 30 * time.Second,
	}
}

func (r *RedisStockCache) Get(ctx context.Context, productID string) (StockInfo, error) {
	data, err := r.client.Get(ctx, stockKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StockInfo{}, ErrCacheMiss
	}
	if err != nil {
		return StockInfo{}, fmt.Errorf("redis get failed: %w", err)
	}

	var info StockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return StockInfo{}, fmt.Errorf("unmarshal stock failed: %w", err)
	}
	return info, nil
}

func (r *RedisStockCache) Set(ctx context.Context, productID string, info StockInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal stock failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(10)) * time.Second
	if err := r.client.Set(ctx, stockKey(productID), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStockCache) Delete(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = stockKey(id)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func stockKey(productID string) string {
	return fmt.Sprintf("stock:%s", productID)
}
