package service

import (
	"context"
	"errors"
	"testing"

	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/store"
)

func mustCreateTransfer(t *testing.T, svc *Service, ctx context.Context, qty int) domain.Transfer {
	t.Helper()
	resp, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		SourceLocationID:      "gudang-pusat",
		DestinationLocationID: "main-store",
		Lines:                 []domain.TransferLineRequest{{SKU: "SKU-MIE-01", Qty: qty}},
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}
	return resp.Transfer
}

func breakdownOf(t *testing.T, svc *Service, sku string, locationID string) domain.BucketBreakdown {
	t.Helper()
	resp, err := svc.StockBreakdown(context.Background(), sku, locationID)
	if err != nil {
		t.Fatalf("stock breakdown failed: %v", err)
	}
	return resp.Breakdown
}

func TestTransferRoundTrip(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	transfer := mustCreateTransfer(t, svc, ctx, 20)
	if transfer.Status != domain.TransferStatusDraft {
		t.Fatalf("expected draft status, got %s", transfer.Status)
	}

	submitted, err := svc.SubmitTransfer(ctx, transfer.ID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if submitted.Transfer.Status != domain.TransferStatusInTransit {
		t.Fatalf("expected in_transit, got %s", submitted.Transfer.Status)
	}

	source := breakdownOf(t, svc, "SKU-MIE-01", "gudang-pusat")
	if source.Available != 180 || source.Reserved != 20 {
		t.Fatalf("expected source 180 available / 20 reserved, got %d / %d", source.Available, source.Reserved)
	}

	received, err := svc.ReceiveTransfer(ctx, transfer.ID, domain.TransferReceiveRequest{
		Lines: []domain.TransferLineRequest{{SKU: "SKU-MIE-01", Qty: 20}},
	})
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if received.Transfer.Lines[0].ReceivedQty != 20 {
		t.Fatalf("expected received qty 20, got %d", received.Transfer.Lines[0].ReceivedQty)
	}

	source = breakdownOf(t, svc, "SKU-MIE-01", "gudang-pusat")
	dest := breakdownOf(t, svc, "SKU-MIE-01", "main-store")
	if source.Reserved != 0 {
		t.Fatalf("expected source reserved drained, got %d", source.Reserved)
	}
	if dest.Available != 70 {
		t.Fatalf("expected destination 70 available, got %d", dest.Available)
	}

	completed, err := svc.CompleteTransfer(adminCtx(), transfer.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Transfer.Status != domain.TransferStatusCompleted {
		t.Fatalf("expected completed status, got %s", completed.Transfer.Status)
	}
	if completed.Transfer.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}
}

func TestCreateTransferRejectsQtyOverAvailable(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateTransfer(staffCtx(), domain.TransferCreateRequest{
		SourceLocationID:      "gudang-pusat",
		DestinationLocationID: "main-store",
		Lines:                 []domain.TransferLineRequest{{SKU: "SKU-MIE-01", Qty: 5000}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for 5000 against 200 available, got %v", err)
	}

	drafts, err := svc.ListTransfers(staffCtx(), "draft", 10)
	if err != nil {
		t.Fatalf("list transfers failed: %v", err)
	}
	if len(drafts.Transfers) != 0 {
		t.Fatalf("expected no draft recorded, got %d", len(drafts.Transfers))
	}
}

func TestSubmitInsufficientStockIsAtomic(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	resp, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		SourceLocationID:      "gudang-pusat",
		DestinationLocationID: "main-store",
		Lines: []domain.TransferLineRequest{
			{SKU: "SKU-MIE-01", Qty: 10},
			{SKU: "SKU-TELUR-01", Qty: 150},
		},
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}

	// Drain the source after the draft so the feasible-at-creation quantity no
	// longer fits at submit time.
	if _, err := svc.WriteOffStock(adminCtx(), domain.StockWriteOffRequest{
		LocationID: "gudang-pusat",
		SKU:        "SKU-TELUR-01",
		Bucket:     domain.BucketAvailable,
		Qty:        100,
		Reason:     "damaged pallet",
	}); err != nil {
		t.Fatalf("write off failed: %v", err)
	}

	_, err = svc.SubmitTransfer(ctx, resp.Transfer.ID)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The feasible line must not have moved either.
	mie := breakdownOf(t, svc, "SKU-MIE-01", "gudang-pusat")
	if mie.Available != 200 || mie.Reserved != 0 {
		t.Fatalf("expected untouched stock 200/0 after failed submit, got %d/%d", mie.Available, mie.Reserved)
	}

	after, err := svc.GetTransfer(ctx, resp.Transfer.ID)
	if err != nil {
		t.Fatalf("get transfer failed: %v", err)
	}
	if after.Transfer.Status != domain.TransferStatusDraft {
		t.Fatalf("expected transfer to stay draft, got %s", after.Transfer.Status)
	}
}

func TestPartialReceiptBlocksCompletionUntilReconciled(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	transfer := mustCreateTransfer(t, svc, ctx, 10)
	if _, err := svc.SubmitTransfer(ctx, transfer.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.ReceiveTransfer(ctx, transfer.ID, domain.TransferReceiveRequest{
		Lines: []domain.TransferLineRequest{{SKU: "SKU-MIE-01", Qty: 7}},
	}); err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	_, err := svc.CompleteTransfer(adminCtx(), transfer.ID)
	if !errors.Is(err, store.ErrUnreconciledDiscrepancy) {
		t.Fatalf("expected ErrUnreconciledDiscrepancy, got %v", err)
	}

	reconciled, err := svc.ReconcileTransfer(adminCtx(), transfer.ID, domain.TransferReconcileRequest{
		Lines: []domain.TransferReconcileLine{{SKU: "SKU-MIE-01", Qty: 3, Action: domain.ReconcileActionWriteOff}},
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if reconciled.Transfer.Lines[0].WrittenOffQty != 3 {
		t.Fatalf("expected written off qty 3, got %d", reconciled.Transfer.Lines[0].WrittenOffQty)
	}

	source := breakdownOf(t, svc, "SKU-MIE-01", "gudang-pusat")
	if source.Reserved != 0 {
		t.Fatalf("expected reserved drained after write-off, got %d", source.Reserved)
	}
	if source.Available != 190 {
		t.Fatalf("expected 190 available (written-off units destroyed), got %d", source.Available)
	}

	if _, err := svc.CompleteTransfer(adminCtx(), transfer.ID); err != nil {
		t.Fatalf("complete after reconcile failed: %v", err)
	}
}

func TestReconcileRestockReturnsUnitsToSource(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	transfer := mustCreateTransfer(t, svc, ctx, 10)
	if _, err := svc.SubmitTransfer(ctx, transfer.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.ReceiveTransfer(ctx, transfer.ID, domain.TransferReceiveRequest{
		Lines: []domain.TransferLineRequest{{SKU: "SKU-MIE-01", Qty: 6}},
	}); err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	if _, err := svc.ReconcileTransfer(adminCtx(), transfer.ID, domain.TransferReconcileRequest{
		Lines: []domain.TransferReconcileLine{{SKU: "SKU-MIE-01", Qty: 4, Action: domain.ReconcileActionRestock}},
	}); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	source := breakdownOf(t, svc, "SKU-MIE-01", "gudang-pusat")
	if source.Available != 194 || source.Reserved != 0 {
		t.Fatalf("expected 194 available / 0 reserved after restock, got %d / %d", source.Available, source.Reserved)
	}

	if _, err := svc.CompleteTransfer(adminCtx(), transfer.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
}

func TestReconcileCannotExceedOutstanding(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	transfer := mustCreateTransfer(t, svc, ctx, 10)
	if _, err := svc.SubmitTransfer(ctx, transfer.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.ReceiveTransfer(ctx, transfer.ID, domain.TransferReceiveRequest{
		Lines: []domain.TransferLineRequest{{SKU: "SKU-MIE-01", Qty: 8}},
	}); err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	_, err := svc.ReconcileTransfer(adminCtx(), transfer.ID, domain.TransferReconcileRequest{
		Lines: []domain.TransferReconcileLine{{SKU: "SKU-MIE-01", Qty: 5, Action: domain.ReconcileActionRestock}},
	})
	if !errors.Is(err, store.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestCancelInTransitReleasesReserved(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	transfer := mustCreateTransfer(t, svc, ctx, 15)
	if _, err := svc.SubmitTransfer(ctx, transfer.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	cancelled, err := svc.CancelTransfer(adminCtx(), transfer.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Transfer.Status != domain.TransferStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Transfer.Status)
	}

	source := breakdownOf(t, svc, "SKU-MIE-01", "gudang-pusat")
	if source.Available != 200 || source.Reserved != 0 {
		t.Fatalf("expected stock fully restored 200/0, got %d/%d", source.Available, source.Reserved)
	}
}

func TestQueueTransferOnlyFromDraft(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	transfer := mustCreateTransfer(t, svc, ctx, 5)
	queued, err := svc.QueueTransfer(ctx, transfer.ID)
	if err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	if queued.Transfer.Status != domain.TransferStatusPending {
		t.Fatalf("expected pending status, got %s", queued.Transfer.Status)
	}

	_, err = svc.QueueTransfer(ctx, transfer.ID)
	if !errors.Is(err, store.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus on second queue, got %v", err)
	}
}

func TestTransferLinesFrozenOnceShipped(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	transfer := mustCreateTransfer(t, svc, ctx, 5)
	if _, err := svc.SubmitTransfer(ctx, transfer.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err := svc.UpdateTransferLines(ctx, transfer.ID, domain.TransferUpdateLinesRequest{
		Lines: []domain.TransferLineRequest{{SKU: "SKU-MIE-01", Qty: 9}},
	})
	if !errors.Is(err, store.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestReceiveAtInspectOnReceiptDestinationStagesInspection(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	resp, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		SourceLocationID:      "gudang-pusat",
		DestinationLocationID: "outlet-store",
		Lines:                 []domain.TransferLineRequest{{SKU: "SKU-SABUN-01", Qty: 12}},
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}
	if _, err := svc.SubmitTransfer(ctx, resp.Transfer.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.ReceiveTransfer(ctx, resp.Transfer.ID, domain.TransferReceiveRequest{
		Lines: []domain.TransferLineRequest{{SKU: "SKU-SABUN-01", Qty: 12}},
	}); err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	dest := breakdownOf(t, svc, "SKU-SABUN-01", "outlet-store")
	if dest.PendingInspection != 12 || dest.Available != 0 {
		t.Fatalf("expected 12 pending inspection / 0 available, got %d / %d", dest.PendingInspection, dest.Available)
	}

	inspections, err := svc.ListInspections(ctx, "pending", 10)
	if err != nil {
		t.Fatalf("list inspections failed: %v", err)
	}
	found := false
	for _, insp := range inspections.Inspections {
		if insp.SourceRef == resp.Transfer.ID && insp.Subject == domain.InspectionSubjectReceiving {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an inspection linked to the transfer receipt")
	}
}

func TestCompleteAndReconcileRequireAdmin(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	transfer := mustCreateTransfer(t, svc, ctx, 5)
	if _, err := svc.SubmitTransfer(ctx, transfer.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := svc.CompleteTransfer(ctx, transfer.ID); err == nil {
		t.Fatalf("expected staff complete to be rejected")
	}
	if _, err := svc.ReconcileTransfer(ctx, transfer.ID, domain.TransferReconcileRequest{
		Lines: []domain.TransferReconcileLine{{SKU: "SKU-MIE-01", Qty: 1, Action: domain.ReconcileActionRestock}},
	}); err == nil {
		t.Fatalf("expected staff reconcile to be rejected")
	}
}
