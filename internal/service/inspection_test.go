package service

import (
	"errors"
	"testing"

	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/store"
)

func TestInspectionLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	opened, err := svc.OpenInspection(ctx, domain.InspectionOpenRequest{
		LocationID: "main-store",
		Lines:      []domain.TransferLineRequest{{SKU: "SKU-MIE-01", Qty: 15}},
	})
	if err != nil {
		t.Fatalf("open inspection failed: %v", err)
	}
	if opened.Inspection.Status != domain.InspectionStatusPending {
		t.Fatalf("expected pending status, got %s", opened.Inspection.Status)
	}

	breakdown := breakdownOf(t, svc, "SKU-MIE-01", "main-store")
	if breakdown.Available != 35 || breakdown.PendingInspection != 15 {
		t.Fatalf("expected 35 available / 15 pending, got %d / %d", breakdown.Available, breakdown.PendingInspection)
	}

	inProgress, err := svc.RecordDisposition(ctx, opened.Inspection.ID, domain.DispositionRequest{
		SKU:         "SKU-MIE-01",
		PassedDelta: 10,
	})
	if err != nil {
		t.Fatalf("disposition failed: %v", err)
	}
	if inProgress.Inspection.Status != domain.InspectionStatusInProgress {
		t.Fatalf("expected in_progress status, got %s", inProgress.Inspection.Status)
	}

	breakdown = breakdownOf(t, svc, "SKU-MIE-01", "main-store")
	if breakdown.Available != 45 || breakdown.PendingInspection != 5 {
		t.Fatalf("expected 45 available / 5 pending after pass, got %d / %d", breakdown.Available, breakdown.PendingInspection)
	}

	if _, err := svc.RecordDisposition(ctx, opened.Inspection.ID, domain.DispositionRequest{
		SKU:         "SKU-MIE-01",
		FailedDelta: 5,
	}); err != nil {
		t.Fatalf("disposition failed: %v", err)
	}

	breakdown = breakdownOf(t, svc, "SKU-MIE-01", "main-store")
	if breakdown.PendingInspection != 0 || breakdown.FailedInspection != 5 {
		t.Fatalf("expected 0 pending / 5 failed, got %d / %d", breakdown.PendingInspection, breakdown.FailedInspection)
	}

	completed, err := svc.CompleteInspection(adminCtx(), opened.Inspection.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Inspection.Status != domain.InspectionStatusCompleted {
		t.Fatalf("expected completed status, got %s", completed.Inspection.Status)
	}
}

func TestDispositionCannotExceedPending(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	opened, err := svc.OpenInspection(ctx, domain.InspectionOpenRequest{
		LocationID: "main-store",
		Lines:      []domain.TransferLineRequest{{SKU: "SKU-TELUR-01", Qty: 8}},
	})
	if err != nil {
		t.Fatalf("open inspection failed: %v", err)
	}

	_, err = svc.RecordDisposition(ctx, opened.Inspection.ID, domain.DispositionRequest{
		SKU:         "SKU-TELUR-01",
		PassedDelta: 6,
		FailedDelta: 3,
	})
	if !errors.Is(err, store.ErrOverDisposition) {
		t.Fatalf("expected ErrOverDisposition, got %v", err)
	}

	// The rejected disposition must not have moved anything.
	breakdown := breakdownOf(t, svc, "SKU-TELUR-01", "main-store")
	if breakdown.PendingInspection != 8 {
		t.Fatalf("expected 8 still pending, got %d", breakdown.PendingInspection)
	}
}

func TestCompleteRequiresFullDisposition(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	opened, err := svc.OpenInspection(ctx, domain.InspectionOpenRequest{
		LocationID: "main-store",
		Lines:      []domain.TransferLineRequest{{SKU: "SKU-SUSU-01", Qty: 10}},
	})
	if err != nil {
		t.Fatalf("open inspection failed: %v", err)
	}
	if _, err := svc.RecordDisposition(ctx, opened.Inspection.ID, domain.DispositionRequest{
		SKU:         "SKU-SUSU-01",
		PassedDelta: 4,
	}); err != nil {
		t.Fatalf("disposition failed: %v", err)
	}

	_, err = svc.CompleteInspection(adminCtx(), opened.Inspection.ID)
	if !errors.Is(err, store.ErrIncompleteInspection) {
		t.Fatalf("expected ErrIncompleteInspection, got %v", err)
	}
}

func TestCancelReleasesUndecidedUnits(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	opened, err := svc.OpenInspection(ctx, domain.InspectionOpenRequest{
		LocationID: "main-store",
		Lines:      []domain.TransferLineRequest{{SKU: "SKU-SABUN-01", Qty: 12}},
	})
	if err != nil {
		t.Fatalf("open inspection failed: %v", err)
	}
	if _, err := svc.RecordDisposition(ctx, opened.Inspection.ID, domain.DispositionRequest{
		SKU:         "SKU-SABUN-01",
		FailedDelta: 2,
	}); err != nil {
		t.Fatalf("disposition failed: %v", err)
	}

	cancelled, err := svc.CancelInspection(adminCtx(), opened.Inspection.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Inspection.Status != domain.InspectionStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Inspection.Status)
	}

	breakdown := breakdownOf(t, svc, "SKU-SABUN-01", "main-store")
	if breakdown.PendingInspection != 0 {
		t.Fatalf("expected pending drained on cancel, got %d", breakdown.PendingInspection)
	}
	if breakdown.Available != 48 {
		t.Fatalf("expected 48 available (10 released, 2 kept failed), got %d", breakdown.Available)
	}
	if breakdown.FailedInspection != 2 {
		t.Fatalf("expected 2 failed units to keep their outcome, got %d", breakdown.FailedInspection)
	}
}

func TestOpenInspectionCannotExceedAvailable(t *testing.T) {
	svc := newTestService()

	_, err := svc.OpenInspection(staffCtx(), domain.InspectionOpenRequest{
		LocationID: "main-store",
		Lines:      []domain.TransferLineRequest{{SKU: "SKU-MIE-01", Qty: 1000}},
	})
	if !errors.Is(err, store.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity for 1000 against 50 available, got %v", err)
	}

	breakdown := breakdownOf(t, svc, "SKU-MIE-01", "main-store")
	if breakdown.Available != 50 || breakdown.PendingInspection != 0 {
		t.Fatalf("expected stock untouched 50/0, got %d/%d", breakdown.Available, breakdown.PendingInspection)
	}
}

func TestDispositionOnClosedInspectionRejected(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	opened, err := svc.OpenInspection(ctx, domain.InspectionOpenRequest{
		LocationID: "main-store",
		Lines:      []domain.TransferLineRequest{{SKU: "SKU-GULA-01", Qty: 4}},
	})
	if err != nil {
		t.Fatalf("open inspection failed: %v", err)
	}
	if _, err := svc.CancelInspection(adminCtx(), opened.Inspection.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	_, err = svc.RecordDisposition(ctx, opened.Inspection.ID, domain.DispositionRequest{
		SKU:         "SKU-GULA-01",
		PassedDelta: 1,
	})
	if !errors.Is(err, store.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}
