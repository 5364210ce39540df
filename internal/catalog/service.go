package catalog

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	repo  Repository
	cache StockCache
	log   *zap.Logger
	sfg   singleflight.Group
}

func NewService(repo Repository, cache StockCache, log *zap.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]*Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// GetStock reads through the cache. Concurrent misses for one product share a
// single database read.
func (s *Service) GetStock(ctx context.Context, productID string) (StockInfo, error) {
	v, err, _ := s.sfg.Do(productID, func() (interface{}, error) {
		info, err := s.cache.Get(ctx, productID)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn("stock cache get failed", zap.String("product_id", productID), zap.Error(err))
		}

		info, err = s.repo.GetStock(ctx, productID)
		if err != nil {
			return StockInfo{}, err
		}

		// Written before returning so an invalidation that follows this read
		// cannot be overwritten by it.
		if err := s.cache.Set(ctx, productID, info); err != nil {
			s.log.Warn("stock cache set failed", zap.String("product_id", productID), zap.Error(err))
		}
		return info, nil
	})
	if err != nil {
		return StockInfo{}, err
	}
	return v.(StockInfo), nil
}

// InvalidateStock drops cached stock so the next read goes to the database.
func (s *Service) InvalidateStock(ctx context.Context, productIDs ...string) error {
	return s.cache.Delete(ctx, productIDs...)
}
