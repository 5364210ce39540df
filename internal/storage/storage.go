// Package storage persists opaque snapshots under string keys. The cart and
// address book serialise themselves; backends only move bytes.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_storefront/pkg/config"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("storage: key not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the backend selected by cfg.StorageBackend.
func Open(ctx context.Context, cfg config.Storefront) (Store, error) {
	switch cfg.StorageBackend {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return NewRedisStore(client, cfg.SnapshotTTL), nil
	case "mongo":
		db, err := ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		s := NewMongoStore(db)
		if err := s.CreateIndexes(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
