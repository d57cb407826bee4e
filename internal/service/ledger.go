package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gudangraja/backend/internal/cache"
	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/store"
	"gudangraja/backend/internal/xid"
)

// StockBreakdown returns the bucket quantities for one product at one
// location, served cache-aside.
func (s *Service) StockBreakdown(ctx context.Context, sku string, locationID string) (domain.StockBreakdownResponse, error) {
	sku = normalizeSKU(sku)
	locationID = strings.ToLower(strings.TrimSpace(locationID))
	if locationID == "" {
		locationID = s.defaultLocationID
	}
	if sku == "" {
		return domain.StockBreakdownResponse{}, store.ErrInvalidRequest
	}

	key := cache.StockKey(sku, locationID)
	if cached, ok, err := s.stock.Get(ctx, key); err == nil && ok {
		return toBreakdownResponse(sku, locationID, *cached), nil
	}

	breakdown, err := s.repo.GetStockBreakdown(ctx, sku, locationID)
	if err != nil {
		return domain.StockBreakdownResponse{}, err
	}

	if err := s.stock.Set(ctx, key, &breakdown, s.stockTTL); err != nil {
		logrus.Warnf("[cache] failed to cache stock breakdown %s: %v", key, err)
	}
	return toBreakdownResponse(sku, locationID, breakdown), nil
}

func toBreakdownResponse(sku string, locationID string, breakdown domain.BucketBreakdown) domain.StockBreakdownResponse {
	return domain.StockBreakdownResponse{
		SKU:        sku,
		LocationID: locationID,
		Breakdown:  breakdown,
		TotalUnits: breakdown.Total(),
		AsOf:       time.Now().UTC().Format(time.RFC3339),
	}
}

// ReceiveStock books new physical units into a location. This is the only
// operation that increases the total unit count. Receipts into a location
// with the inspect-on-receipt policy land in PENDING_INSPECTION and get a
// quality inspection opened against them.
func (s *Service) ReceiveStock(ctx context.Context, req domain.StockReceiptRequest) (domain.StockReceiptResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.StockReceiptResponse{}, err
	}

	req.SKU = normalizeSKU(req.SKU)
	req.LocationID = strings.ToLower(strings.TrimSpace(req.LocationID))
	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}
	if req.SKU == "" {
		return domain.StockReceiptResponse{}, store.ErrInvalidRequest
	}
	if req.Qty < 1 {
		return domain.StockReceiptResponse{}, fmt.Errorf("%w: receipt qty must be positive", store.ErrInvalidQuantity)
	}

	location, err := s.repo.GetLocationByID(ctx, req.LocationID)
	if err != nil {
		return domain.StockReceiptResponse{}, err
	}
	if _, err := s.repo.GetProductBySKU(ctx, req.SKU); err != nil {
		return domain.StockReceiptResponse{}, err
	}

	bucket := domain.BucketAvailable
	if location.InspectOnReceipt {
		bucket = domain.BucketPendingInspection
	}

	receiptID := xid.New("rcpt")
	mutations := []domain.StockMutation{{
		SKU:        req.SKU,
		LocationID: req.LocationID,
		Bucket:     bucket,
		Delta:      req.Qty,
	}}
	if err := s.repo.ApplyStockMutations(ctx, mutations, domain.Cause{Type: domain.CauseStockReceipt, ID: receiptID}); err != nil {
		return domain.StockReceiptResponse{}, err
	}
	s.invalidateStock(ctx, mutations)

	if location.InspectOnReceipt {
		s.openStagedInspection(ctx, domain.InspectionSubjectReceiving, req.LocationID, receiptID, []domain.TransferLineRequest{{SKU: req.SKU, Qty: req.Qty}})
	}

	breakdown, err := s.repo.GetStockBreakdown(ctx, req.SKU, req.LocationID)
	if err != nil {
		return domain.StockReceiptResponse{}, err
	}

	s.logAudit(ctx, req.LocationID, "stock_receipt", "stock", receiptID, fmt.Sprintf("sku=%s,qty=%d,bucket=%s,note=%s", req.SKU, req.Qty, bucket, req.Note))
	return domain.StockReceiptResponse{
		ReceiptID:  receiptID,
		SKU:        req.SKU,
		LocationID: req.LocationID,
		Bucket:     bucket,
		Qty:        req.Qty,
		Breakdown:  breakdown,
	}, nil
}

// WriteOffStock removes units from a bucket permanently. This is the only
// operation that decreases the total unit count outside transfer
// reconciliation.
func (s *Service) WriteOffStock(ctx context.Context, req domain.StockWriteOffRequest) (domain.StockBreakdownResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.StockBreakdownResponse{}, err
	}

	req.SKU = normalizeSKU(req.SKU)
	req.LocationID = strings.ToLower(strings.TrimSpace(req.LocationID))
	req.Reason = strings.TrimSpace(req.Reason)
	if req.SKU == "" || req.LocationID == "" || req.Reason == "" {
		return domain.StockBreakdownResponse{}, store.ErrInvalidRequest
	}
	if !req.Bucket.Valid() {
		return domain.StockBreakdownResponse{}, store.ErrInvalidRequest
	}
	if req.Qty < 1 {
		return domain.StockBreakdownResponse{}, fmt.Errorf("%w: write-off qty must be positive", store.ErrInvalidQuantity)
	}

	writeOffID := xid.New("wo")
	mutations := []domain.StockMutation{{
		SKU:        req.SKU,
		LocationID: req.LocationID,
		Bucket:     req.Bucket,
		Delta:      -req.Qty,
	}}
	if err := s.repo.ApplyStockMutations(ctx, mutations, domain.Cause{Type: domain.CauseStockWriteOff, ID: writeOffID}); err != nil {
		return domain.StockBreakdownResponse{}, err
	}
	s.invalidateStock(ctx, mutations)

	breakdown, err := s.repo.GetStockBreakdown(ctx, req.SKU, req.LocationID)
	if err != nil {
		return domain.StockBreakdownResponse{}, err
	}

	s.logAudit(ctx, req.LocationID, "stock_write_off", "stock", writeOffID, fmt.Sprintf("sku=%s,bucket=%s,qty=%d,reason=%s", req.SKU, req.Bucket, req.Qty, req.Reason))
	return toBreakdownResponse(req.SKU, req.LocationID, breakdown), nil
}

func (s *Service) LedgerHistory(ctx context.Context, sku string, locationID string, limit int) (domain.LedgerHistoryResponse, error) {
	sku = normalizeSKU(sku)
	locationID = strings.ToLower(strings.TrimSpace(locationID))
	if sku == "" && locationID == "" {
		return domain.LedgerHistoryResponse{}, store.ErrInvalidRequest
	}
	if limit < 1 {
		limit = 100
	}

	entries, err := s.repo.ListLedgerEntries(ctx, sku, locationID, limit)
	if err != nil {
		return domain.LedgerHistoryResponse{}, err
	}

	return domain.LedgerHistoryResponse{
		SKU:        sku,
		LocationID: locationID,
		Entries:    entries,
	}, nil
}

func (s *Service) ReorderSuggestions(ctx context.Context, locationID string) (domain.ReorderSuggestionResponse, error) {
	locationID = strings.ToLower(strings.TrimSpace(locationID))
	if locationID == "" {
		locationID = s.defaultLocationID
	}
	if _, err := s.repo.GetLocationByID(ctx, locationID); err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}

	availableBySKU := make(map[string]int, len(products))
	for _, product := range products {
		breakdown, err := s.repo.GetStockBreakdown(ctx, product.SKU, locationID)
		if err != nil {
			return domain.ReorderSuggestionResponse{}, err
		}
		availableBySKU[product.SKU] = breakdown.Available
	}

	return s.replenisher.Suggest(ctx, locationID, products, availableBySKU), nil
}
