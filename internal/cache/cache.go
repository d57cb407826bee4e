package cache

import (
	"context"
	"time"

	"gudangraja/backend/internal/domain"
)

// StockCache holds the per-(sku, location) bucket breakdown projection. Every
// mutation path invalidates the touched keys; readers fall through to the
// repository on a miss.
type StockCache interface {
	Get(ctx context.Context, key string) (*domain.BucketBreakdown, bool, error)
	Set(ctx context.Context, key string, value *domain.BucketBreakdown, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type SuggestionCache interface {
	Get(ctx context.Context, key string) (*domain.ReorderSuggestionResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.ReorderSuggestionResponse, ttl time.Duration) error
}

func StockKey(sku string, locationID string) string {
	return "inventory:stock:" + locationID + ":" + sku
}

type NoopStockCache struct{}

func (NoopStockCache) Get(_ context.Context, _ string) (*domain.BucketBreakdown, bool, error) {
	return nil, false, nil
}

func (NoopStockCache) Set(_ context.Context, _ string, _ *domain.BucketBreakdown, _ time.Duration) error {
	return nil
}

func (NoopStockCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}

type NoopSuggestionCache struct{}

func (NoopSuggestionCache) Get(_ context.Context, _ string) (*domain.ReorderSuggestionResponse, bool, error) {
	return nil, false, nil
}

func (NoopSuggestionCache) Set(_ context.Context, _ string, _ *domain.ReorderSuggestionResponse, _ time.Duration) error {
	return nil
}
