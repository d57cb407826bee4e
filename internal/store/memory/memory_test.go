package memory

import (
	"context"
	"errors"
	"testing"

	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/store"
)

func TestApplyStockMutationsIsAllOrNothing(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.ApplyStockMutations(ctx, []domain.StockMutation{
		{SKU: "SKU-MIE-01", LocationID: "main-store", Bucket: domain.BucketAvailable, Delta: -10},
		{SKU: "SKU-TELUR-01", LocationID: "main-store", Bucket: domain.BucketAvailable, Delta: -1000},
	}, domain.Cause{Type: domain.CauseStockWriteOff, ID: "wo-test"})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	breakdown, err := s.GetStockBreakdown(ctx, "SKU-MIE-01", "main-store")
	if err != nil {
		t.Fatalf("get breakdown failed: %v", err)
	}
	if breakdown.Available != 50 {
		t.Fatalf("expected first mutation rolled back to 50, got %d", breakdown.Available)
	}

	entries, err := s.ListLedgerEntries(ctx, "SKU-MIE-01", "main-store", 10)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no ledger entries for failed batch, got %d", len(entries))
	}
}

func TestApplyStockMutationsAppendsOneEntryPerMutation(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.ApplyStockMutations(ctx, []domain.StockMutation{
		{SKU: "SKU-MIE-01", LocationID: "main-store", Bucket: domain.BucketAvailable, Delta: -5},
		{SKU: "SKU-MIE-01", LocationID: "main-store", Bucket: domain.BucketPendingInspection, Delta: 5},
	}, domain.Cause{Type: domain.CauseInspectionOpen, ID: "insp-test"})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	entries, err := s.ListLedgerEntries(ctx, "SKU-MIE-01", "main-store", 10)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two ledger entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.CauseType != domain.CauseInspectionOpen || entry.CauseID != "insp-test" {
			t.Fatalf("unexpected cause on entry %+v", entry)
		}
	}

	breakdown, err := s.GetStockBreakdown(ctx, "SKU-MIE-01", "main-store")
	if err != nil {
		t.Fatalf("get breakdown failed: %v", err)
	}
	if breakdown.Total() != 50 {
		t.Fatalf("expected bucket move to conserve total 50, got %d", breakdown.Total())
	}
	if breakdown.Available != 45 || breakdown.PendingInspection != 5 {
		t.Fatalf("expected 45/5 split, got %d/%d", breakdown.Available, breakdown.PendingInspection)
	}
}

func TestApplyStockMutationsRejectsUnknownReferences(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.ApplyStockMutations(ctx, []domain.StockMutation{
		{SKU: "SKU-NOPE", LocationID: "main-store", Bucket: domain.BucketAvailable, Delta: 1},
	}, domain.Cause{Type: domain.CauseStockReceipt, ID: "rcpt-test"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown sku, got %v", err)
	}

	err = s.ApplyStockMutations(ctx, []domain.StockMutation{
		{SKU: "SKU-MIE-01", LocationID: "nowhere", Bucket: domain.BucketAvailable, Delta: 1},
	}, domain.Cause{Type: domain.CauseStockReceipt, ID: "rcpt-test"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown location, got %v", err)
	}
}

func TestUpdateTransferRejectsStaleVersion(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateTransfer(ctx, domain.Transfer{
		ID:                    "trf-stale",
		SourceLocationID:      "gudang-pusat",
		DestinationLocationID: "main-store",
		Status:                domain.TransferStatusDraft,
		Lines:                 []domain.TransferLine{{SKU: "SKU-MIE-01", RequestedQty: 5}},
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}
	snapshot := *created

	first := snapshot
	first.Status = domain.TransferStatusPending
	if _, err := s.UpdateTransfer(ctx, first, nil, domain.Cause{}); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	// A second write carrying the pre-update version must be rejected.
	stale := snapshot
	stale.Status = domain.TransferStatusCancelled
	_, err = s.UpdateTransfer(ctx, stale, nil, domain.Cause{})
	if !errors.Is(err, store.ErrContention) {
		t.Fatalf("expected ErrContention for stale version, got %v", err)
	}

	current, err := s.GetTransferByID(ctx, "trf-stale")
	if err != nil {
		t.Fatalf("get transfer failed: %v", err)
	}
	if current.Status != domain.TransferStatusPending {
		t.Fatalf("expected first write to stand, got %s", current.Status)
	}
}

func TestUpdateReturnStaleVersionAppliesNoMutations(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateReturn(ctx, domain.Return{
		ID:         "ret-stale",
		SaleID:     "sale-stale",
		LocationID: "main-store",
		Status:     domain.ReturnStatusPending,
		Lines:      []domain.ReturnLine{{SKU: "SKU-MIE-01", Qty: 2, Condition: domain.ReturnConditionResellable}},
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}
	snapshot := *created

	mutations := []domain.StockMutation{
		{SKU: "SKU-MIE-01", LocationID: "main-store", Bucket: domain.BucketAvailable, Delta: 2},
	}
	cause := domain.Cause{Type: domain.CauseReturnApproval, ID: "ret-stale"}

	first := snapshot
	first.Status = domain.ReturnStatusApproved
	if _, err := s.UpdateReturn(ctx, first, mutations, cause); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	stale := snapshot
	stale.Status = domain.ReturnStatusApproved
	_, err = s.UpdateReturn(ctx, stale, mutations, cause)
	if !errors.Is(err, store.ErrContention) {
		t.Fatalf("expected ErrContention for stale version, got %v", err)
	}

	// The stale write must not have re-applied the restock.
	breakdown, err := s.GetStockBreakdown(ctx, "SKU-MIE-01", "main-store")
	if err != nil {
		t.Fatalf("get breakdown failed: %v", err)
	}
	if breakdown.Available != 52 {
		t.Fatalf("expected a single credit to 52, got %d", breakdown.Available)
	}
	entries, err := s.ListLedgerEntries(ctx, "SKU-MIE-01", "main-store", 10)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
}

func TestCreateSaleEnforcesIdempotencyKey(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale := domain.Sale{
		ID:             "sale-1",
		LocationID:     "main-store",
		IdempotencyKey: "idem-1",
		Status:         domain.SaleStatusFinalized,
		Lines:          []domain.SaleLine{{SKU: "SKU-MIE-01", Qty: 1, UnitPriceCents: 3500}},
	}
	if _, err := s.CreateSale(ctx, sale, nil, domain.Cause{}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	sale.ID = "sale-2"
	if _, err := s.CreateSale(ctx, sale, nil, domain.Cause{}); err == nil {
		t.Fatalf("expected duplicate idempotency key to be rejected")
	}

	found, err := s.FindSaleByIdempotency(ctx, "idem-1")
	if err != nil {
		t.Fatalf("find by idempotency failed: %v", err)
	}
	if found.ID != "sale-1" {
		t.Fatalf("expected sale-1, got %s", found.ID)
	}
}
