package inventory

import (
	"context"

	"go.uber.org/zap"

	"stockcore-system/internal/cache"
)

const (
	cacheEntityLevels    = "levels"
	cacheEntityValuation = "valuation"
)

// Levels is the query side of the inventory level store. Mutations go
// through the Coordinator; this service only reads, optionally through the
// cache.
type Levels struct {
	store  Store
	cache  cache.Cache
	logger *zap.Logger
}

func NewLevels(store Store, c cache.Cache, logger *zap.Logger) *Levels {
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Levels{store: store, cache: c, logger: logger}
}

func levelCacheKey(key LevelKey) cache.Key {
	return cache.NewKey(key.TenantID, cacheEntityLevels, key.ProductID, key.Variant.String(), key.LocationID)
}

func (s *Levels) Get(ctx context.Context, key LevelKey) (*InventoryLevel, error) {
	var cached InventoryLevel
	if s.cache.Get(ctx, levelCacheKey(key), &cached) {
		return &cached, nil
	}

	level, err := s.store.Levels().Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, levelCacheKey(key), level, cache.TTL_SHORT)
	return level, nil
}

func (s *Levels) ListByLocation(ctx context.Context, tenantID, locationID string) ([]InventoryLevel, error) {
	return s.store.Levels().ListByLocation(ctx, tenantID, locationID)
}

func (s *Levels) ListBelowReorderPoint(ctx context.Context, tenantID string, locationID *string, page Page) ([]InventoryLevel, int64, error) {
	return s.store.Levels().ListBelowReorderPoint(ctx, tenantID, locationID, page)
}
