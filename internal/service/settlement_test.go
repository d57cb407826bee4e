package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gudangraja/backend/internal/cache"
	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/replenish"
	"gudangraja/backend/internal/store"
	"gudangraja/backend/internal/store/memory"
)

func TestFinalizeSaleDecrementsStock(t *testing.T) {
	svc := newTestService()

	resp, err := svc.FinalizeSale(staffCtx(), domain.SaleFinalizeRequest{
		LocationID:     "main-store",
		IdempotencyKey: "idem-sale-1",
		Lines: []domain.SaleLineRequest{
			{SKU: "SKU-MIE-01", Qty: 3},
			{SKU: "SKU-KOPI-01", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if resp.Duplicate {
		t.Fatalf("expected fresh sale, got duplicate")
	}
	if resp.Sale.TotalCents != 3*3500+2*2600 {
		t.Fatalf("expected total 15700, got %d", resp.Sale.TotalCents)
	}
	if resp.Sale.CashierName != "staff" {
		t.Fatalf("expected cashier from actor context, got %s", resp.Sale.CashierName)
	}

	mie := breakdownOf(t, svc, "SKU-MIE-01", "main-store")
	kopi := breakdownOf(t, svc, "SKU-KOPI-01", "main-store")
	if mie.Available != 47 || kopi.Available != 48 {
		t.Fatalf("expected 47/48 available, got %d/%d", mie.Available, kopi.Available)
	}
}

func TestFinalizeSaleIdempotentReplay(t *testing.T) {
	svc := newTestService()

	req := domain.SaleFinalizeRequest{
		LocationID:     "main-store",
		IdempotencyKey: "idem-sale-replay",
		Lines:          []domain.SaleLineRequest{{SKU: "SKU-MIE-01", Qty: 2}},
	}

	first, err := svc.FinalizeSale(staffCtx(), req)
	if err != nil {
		t.Fatalf("first finalize failed: %v", err)
	}
	second, err := svc.FinalizeSale(staffCtx(), req)
	if err != nil {
		t.Fatalf("replay finalize failed: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected replay to be flagged duplicate")
	}
	if second.Sale.ID != first.Sale.ID {
		t.Fatalf("expected same sale id on replay")
	}

	breakdown := breakdownOf(t, svc, "SKU-MIE-01", "main-store")
	if breakdown.Available != 48 {
		t.Fatalf("expected stock decremented once to 48, got %d", breakdown.Available)
	}
}

// missingKeyRepo reports the idempotency key as unknown for a fixed number of
// lookups, standing in for a replay that races past the pre-insert check.
type missingKeyRepo struct {
	store.Repository
	misses int
}

func (r *missingKeyRepo) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	if r.misses > 0 {
		r.misses--
		return nil, store.ErrNotFound
	}
	return r.Repository.FindSaleByIdempotency(ctx, key)
}

func TestFinalizeSaleRacingReplayReturnsRecordedSale(t *testing.T) {
	racing := &missingKeyRepo{Repository: memory.NewSeeded(), misses: 2}
	replenisher := replenish.NewEngine(cache.NoopSuggestionCache{}, 5*time.Second)
	svc := New(racing, cache.NoopStockCache{}, replenisher, "main-store", 5*time.Second)

	req := domain.SaleFinalizeRequest{
		LocationID:     "main-store",
		IdempotencyKey: "idem-sale-race",
		Lines:          []domain.SaleLineRequest{{SKU: "SKU-MIE-01", Qty: 2}},
	}

	first, err := svc.FinalizeSale(staffCtx(), req)
	if err != nil {
		t.Fatalf("first finalize failed: %v", err)
	}

	// The replay's lookup misses, so it falls through to the insert and loses
	// to the unique key. It must surface the recorded sale, not an error.
	second, err := svc.FinalizeSale(staffCtx(), req)
	if err != nil {
		t.Fatalf("racing replay failed: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected racing replay to be flagged duplicate")
	}
	if second.Sale.ID != first.Sale.ID {
		t.Fatalf("expected recorded sale %s, got %s", first.Sale.ID, second.Sale.ID)
	}

	breakdown := breakdownOf(t, svc, "SKU-MIE-01", "main-store")
	if breakdown.Available != 48 {
		t.Fatalf("expected stock decremented once to 48, got %d", breakdown.Available)
	}
}

func TestFinalizeSaleInsufficientStockIsAtomic(t *testing.T) {
	svc := newTestService()

	_, err := svc.FinalizeSale(staffCtx(), domain.SaleFinalizeRequest{
		LocationID:     "main-store",
		IdempotencyKey: "idem-sale-atomic",
		Lines: []domain.SaleLineRequest{
			{SKU: "SKU-MIE-01", Qty: 3},
			{SKU: "SKU-SUSU-01", Qty: 1000},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The feasible line must not have been decremented.
	breakdown := breakdownOf(t, svc, "SKU-MIE-01", "main-store")
	if breakdown.Available != 50 {
		t.Fatalf("expected untouched stock 50 after failed batch, got %d", breakdown.Available)
	}

	lookup, err := svc.LookupSaleByIdempotency(staffCtx(), "idem-sale-atomic")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if lookup.Found {
		t.Fatalf("expected no sale recorded for failed batch")
	}
}

func TestFinalizeSaleAggregatesDuplicateLines(t *testing.T) {
	svc := newTestService()

	resp, err := svc.FinalizeSale(staffCtx(), domain.SaleFinalizeRequest{
		IdempotencyKey: "idem-sale-agg",
		Lines: []domain.SaleLineRequest{
			{SKU: "SKU-MIE-01", Qty: 1},
			{SKU: "sku-mie-01", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if len(resp.Sale.Lines) != 1 {
		t.Fatalf("expected one aggregated line, got %d", len(resp.Sale.Lines))
	}
	if resp.Sale.Lines[0].Qty != 3 {
		t.Fatalf("expected aggregated qty 3, got %d", resp.Sale.Lines[0].Qty)
	}
}

func TestFinalizeSaleRejectsNonPositiveQty(t *testing.T) {
	svc := newTestService()

	_, err := svc.FinalizeSale(staffCtx(), domain.SaleFinalizeRequest{
		IdempotencyKey: "idem-sale-badqty",
		Lines:          []domain.SaleLineRequest{{SKU: "SKU-MIE-01", Qty: 0}},
	})
	if !errors.Is(err, store.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestLookupSaleByIdempotency(t *testing.T) {
	svc := newTestService()

	lookup, err := svc.LookupSaleByIdempotency(staffCtx(), "idem-missing")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if lookup.Found {
		t.Fatalf("expected not found for unknown key")
	}

	if _, err := svc.FinalizeSale(staffCtx(), domain.SaleFinalizeRequest{
		IdempotencyKey: "idem-sale-lookup",
		Lines:          []domain.SaleLineRequest{{SKU: "SKU-MIE-01", Qty: 1}},
	}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	lookup, err = svc.LookupSaleByIdempotency(staffCtx(), "idem-sale-lookup")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !lookup.Found || lookup.Sale == nil {
		t.Fatalf("expected sale to be found")
	}
}
