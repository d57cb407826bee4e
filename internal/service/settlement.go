package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/store"
	"gudangraja/backend/internal/xid"
)

// FinalizeSale settles a point-of-sale basket: every line decrements the
// location's AVAILABLE bucket in one atomic batch alongside the sale record.
// A replay with the same idempotency key returns the recorded sale without
// touching stock again.
func (s *Service) FinalizeSale(ctx context.Context, req domain.SaleFinalizeRequest) (domain.SaleResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	locationID := strings.ToLower(strings.TrimSpace(req.LocationID))
	if locationID == "" {
		locationID = s.defaultLocationID
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}

	lines, err := normalizeSaleLines(req.Lines)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	if existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return domain.SaleResponse{Sale: *existing, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.SaleResponse{}, err
	}

	if _, err := s.repo.GetLocationByID(ctx, locationID); err != nil {
		return domain.SaleResponse{}, err
	}

	skus := make([]string, 0, len(lines))
	for _, line := range lines {
		skus = append(skus, line.SKU)
	}
	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	saleLines := make([]domain.SaleLine, 0, len(lines))
	mutations := make([]domain.StockMutation, 0, len(lines))
	totalCents := int64(0)
	for _, line := range lines {
		product, exists := products[line.SKU]
		if !exists {
			return domain.SaleResponse{}, fmt.Errorf("%w: unknown sku %s", store.ErrInvalidRequest, line.SKU)
		}
		saleLines = append(saleLines, domain.SaleLine{
			SKU:            line.SKU,
			Qty:            line.Qty,
			UnitPriceCents: product.RetailPriceCents,
		})
		mutations = append(mutations, domain.StockMutation{
			SKU:        line.SKU,
			LocationID: locationID,
			Bucket:     domain.BucketAvailable,
			Delta:      -line.Qty,
		})
		totalCents += int64(line.Qty) * product.RetailPriceCents
	}

	sale := domain.Sale{
		ID:             xid.New("sale"),
		LocationID:     locationID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         domain.SaleStatusFinalized,
		TotalCents:     totalCents,
		CashierName:    actor.Username,
		Lines:          saleLines,
		CreatedAt:      time.Now().UTC(),
	}

	created, err := s.repo.CreateSale(ctx, sale, mutations, domain.Cause{Type: domain.CauseSale, ID: sale.ID})
	if err != nil {
		// A concurrent replay can slip past the lookup above and lose to the
		// unique idempotency key. The recorded sale is the answer either way.
		if errors.Is(err, store.ErrInvalidRequest) {
			if existing, findErr := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); findErr == nil {
				return domain.SaleResponse{Sale: *existing, Duplicate: true}, nil
			}
		}
		return domain.SaleResponse{}, err
	}
	s.invalidateStock(ctx, mutations)

	s.logAudit(ctx, locationID, "sale_finalize", "sale", created.ID, fmt.Sprintf("total=%d,lines=%d", created.TotalCents, len(created.Lines)))
	return domain.SaleResponse{Sale: *created, Duplicate: false}, nil
}

func normalizeSaleLines(lines []domain.SaleLineRequest) ([]domain.SaleLineRequest, error) {
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
			return nil, fmt.Errorf("%w: sale qty for %s must be positive", store.ErrInvalidQuantity, sku)
		}
		aggregated[sku] += line.Qty
	}

	result := make([]domain.SaleLineRequest, 0, len(aggregated))
	for sku, qty := range aggregated {
		result = append(result, domain.SaleLineRequest{SKU: sku, Qty: qty})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SKU < result[j].SKU })
	return result, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) LookupSaleByIdempotency(ctx context.Context, idempotencyKey string) (domain.SaleLookupResponse, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		return domain.SaleLookupResponse{}, store.ErrInvalidRequest
	}

	sale, err := s.repo.FindSaleByIdempotency(ctx, strings.TrimSpace(idempotencyKey))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleLookupResponse{Found: false}, nil
		}
		return domain.SaleLookupResponse{}, err
	}
	return domain.SaleLookupResponse{Found: true, Sale: sale}, nil
}
