package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gudangraja/backend/internal/cache"
	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/replenish"
	"gudangraja/backend/internal/store"
	"gudangraja/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service composes the ledger, transfer, inspection, return, and settlement
// engines over one repository. Every mutating operation resolves its actor
// from the request context and leaves an audit trail.
type Service struct {
	repo              store.Repository
	stock             cache.StockCache
	stockTTL          time.Duration
	replenisher       *replenish.Engine
	defaultLocationID string
}

func New(repo store.Repository, stockCache cache.StockCache, replenisher *replenish.Engine, defaultLocationID string, stockTTL time.Duration) *Service {
	if stockCache == nil {
		stockCache = cache.NoopStockCache{}
	}
	if stockTTL <= 0 {
		stockTTL = 10 * time.Second
	}
	if defaultLocationID == "" {
		defaultLocationID = "main-store"
	}

	return &Service{
		repo:              repo,
		stock:             stockCache,
		stockTTL:          stockTTL,
		replenisher:       replenisher,
		defaultLocationID: defaultLocationID,
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("authentication required")
	}
	return actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("admin role required")
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, locationID string, action string, entityType string, entityID string, detail string) {
	if locationID == "" {
		locationID = s.defaultLocationID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		LocationID:    locationID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		logrus.Warnf("[audit] failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// invalidateStock drops the cached breakdowns touched by a mutation batch.
// A failed invalidation is logged, not returned: the cache TTL bounds how
// long a stale read can live.
func (s *Service) invalidateStock(ctx context.Context, mutations []domain.StockMutation) {
	if len(mutations) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(mutations))
	keys := make([]string, 0, len(mutations))
	for _, m := range mutations {
		key := cache.StockKey(m.SKU, m.LocationID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := s.stock.Invalidate(ctx, keys...); err != nil {
		logrus.Warnf("[cache] failed to invalidate stock keys: %v", err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, locationID string, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	day := time.Now().UTC().Truncate(24 * time.Hour)
	if strings.TrimSpace(date) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
		if err != nil {
			return nil, store.ErrInvalidRequest
		}
		day = parsed
	}
	if limit < 1 {
		limit = 100
	}

	return s.repo.ListAuditLogs(ctx, locationID, day, day.Add(24*time.Hour), limit)
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// normalizeLineRequests aggregates duplicate SKUs and rejects non-positive
// quantities. The result is sorted for stable downstream ordering.
func normalizeLineRequests(lines []domain.TransferLineRequest) ([]domain.TransferLineRequest, error) {
	if len(lines) == 0 {
		return nil, store.ErrInvalidRequest
	}

	aggregated := make(map[string]int, len(lines))
	for _, line := range lines {
		sku := normalizeSKU(line.SKU)
		if sku == "" {
			return nil, store.ErrInvalidRequest
		}
		if line.Qty < 1 {
			return nil, fmt.Errorf("%w: qty for %s must be positive", store.ErrInvalidQuantity, sku)
		}
		aggregated[sku] += line.Qty
	}

	result := make([]domain.TransferLineRequest, 0, len(aggregated))
	for sku, qty := range aggregated {
		result = append(result, domain.TransferLineRequest{SKU: sku, Qty: qty})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SKU < result[j].SKU })
	return result, nil
}

// docNumber mints a human-facing document number such as TRF-20260830-4F2A91.
func docNumber(prefix string) string {
	id := xid.New(prefix)
	tail := id[strings.LastIndex(id, "-")+1:]
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("20060102"), strings.ToUpper(tail[:6]))
}
