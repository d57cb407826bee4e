package replenish

import (
	"context"
	"sort"
	"time"

	"gudangraja/backend/internal/cache"
	"gudangraja/backend/internal/domain"
)

// Engine turns the catalog's min-stock/reorder-point settings into concrete
// order suggestions for one location. Results are cached briefly since stock
// moves faster than purchasing reacts.
type Engine struct {
	cache    cache.SuggestionCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.SuggestionCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopSuggestionCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func (e *Engine) Suggest(
	ctx context.Context,
	locationID string,
	products []domain.Product,
	availableBySKU map[string]int,
) domain.ReorderSuggestionResponse {
	cacheKey := "inventory:reorder:" + locationID
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached
	}

	suggestions := make([]domain.ReorderSuggestion, 0, 24)
	for _, product := range products {
		if !product.Active {
			continue
		}
		available := availableBySKU[product.SKU]
		reorderPoint := effectiveReorderPoint(product)
		if available > reorderPoint {
			continue
		}
		targetStock := reorderPoint * 2
		recommendedQty := targetStock - available
		if recommendedQty < 1 {
			continue
		}
		suggestions = append(suggestions, domain.ReorderSuggestion{
			SKU:            product.SKU,
			Name:           product.Name,
			Category:       product.Category,
			Available:      available,
			MinStockLevel:  product.MinStockLevel,
			ReorderPoint:   reorderPoint,
			RecommendedQty: recommendedQty,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Available == suggestions[j].Available {
			return suggestions[i].SKU < suggestions[j].SKU
		}
		return suggestions[i].Available < suggestions[j].Available
	})

	resp := domain.ReorderSuggestionResponse{
		LocationID:  locationID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Suggestions: suggestions,
	}
	_ = e.cache.Set(ctx, cacheKey, &resp, e.cacheTTL)
	return resp
}

func effectiveReorderPoint(product domain.Product) int {
	if product.ReorderPoint > 0 {
		return product.ReorderPoint
	}
	if product.MinStockLevel > 0 {
		return product.MinStockLevel * 2
	}
	return 10
}
