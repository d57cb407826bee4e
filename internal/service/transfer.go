package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/store"
	"gudangraja/backend/internal/xid"
)

// CreateTransfer opens a draft stock transfer. Drafts have no ledger effect;
// stock only moves when the transfer is submitted.
func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferCreateRequest) (domain.TransferResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.TransferResponse{}, err
	}

	source := strings.ToLower(strings.TrimSpace(req.SourceLocationID))
	destination := strings.ToLower(strings.TrimSpace(req.DestinationLocationID))
	if source == "" || destination == "" {
		return domain.TransferResponse{}, store.ErrInvalidRequest
	}
	if source == destination {
		return domain.TransferResponse{}, fmt.Errorf("%w: source and destination must differ", store.ErrInvalidRequest)
	}

	lines, err := normalizeLineRequests(req.Lines)
	if err != nil {
		return domain.TransferResponse{}, err
	}

	if _, err := s.repo.GetLocationByID(ctx, source); err != nil {
		return domain.TransferResponse{}, err
	}
	if _, err := s.repo.GetLocationByID(ctx, destination); err != nil {
		return domain.TransferResponse{}, err
	}
	if err := s.verifyKnownSKUs(ctx, lines); err != nil {
		return domain.TransferResponse{}, err
	}

	// Requested quantities are checked against source availability now;
	// submission re-checks atomically when the stock actually moves.
	for _, line := range lines {
		breakdown, err := s.repo.GetStockBreakdown(ctx, line.SKU, source)
		if err != nil {
			return domain.TransferResponse{}, err
		}
		if line.Qty > breakdown.Available {
			return domain.TransferResponse{}, fmt.Errorf("%w: requested %d of %s exceeds %d available at %s", store.ErrInsufficientStock, line.Qty, line.SKU, breakdown.Available, source)
		}
	}

	transferLines := make([]domain.TransferLine, 0, len(lines))
	for _, line := range lines {
		transferLines = append(transferLines, domain.TransferLine{SKU: line.SKU, RequestedQty: line.Qty})
	}

	transfer := domain.Transfer{
		ID:                    xid.New("trf"),
		TransferNumber:        docNumber("TRF"),
		SourceLocationID:      source,
		DestinationLocationID: destination,
		Status:                domain.TransferStatusDraft,
		RequestedBy:           actor.Username,
		Lines:                 transferLines,
		CreatedAt:             time.Now().UTC(),
	}

	created, err := s.repo.CreateTransfer(ctx, transfer)
	if err != nil {
		return domain.TransferResponse{}, err
	}

	s.logAudit(ctx, source, "transfer_create", "transfer", created.ID, fmt.Sprintf("number=%s,destination=%s,lines=%d", created.TransferNumber, destination, len(created.Lines)))
	return domain.TransferResponse{Transfer: *created}, nil
}

func (s *Service) verifyKnownSKUs(ctx context.Context, lines []domain.TransferLineRequest) error {
	skus := make([]string, 0, len(lines))
	for _, line := range lines {
		skus = append(skus, line.SKU)
	}
	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, ok := products[line.SKU]; !ok {
			return fmt.Errorf("%w: unknown sku %s", store.ErrNotFound, line.SKU)
		}
	}
	return nil
}

// UpdateTransferLines replaces the requested lines of a transfer that has not
// yet shipped.
func (s *Service) UpdateTransferLines(ctx context.Context, transferID string, req domain.TransferUpdateLinesRequest) (domain.TransferResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.TransferResponse{}, err
	}

	transfer, err := s.repo.GetTransferByID(ctx, transferID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	if !transfer.Status.Editable() {
		return domain.TransferResponse{}, fmt.Errorf("%w: lines are frozen once a transfer ships", store.ErrInvalidStatus)
	}

	lines, err := normalizeLineRequests(req.Lines)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	if err := s.verifyKnownSKUs(ctx, lines); err != nil {
		return domain.TransferResponse{}, err
	}

	transferLines := make([]domain.TransferLine, 0, len(lines))
	for _, line := range lines {
		transferLines = append(transferLines, domain.TransferLine{SKU: line.SKU, RequestedQty: line.Qty})
	}
	transfer.Lines = transferLines

	updated, err := s.repo.UpdateTransfer(ctx, *transfer, nil, domain.Cause{})
	if err != nil {
		return domain.TransferResponse{}, err
	}

	s.logAudit(ctx, transfer.SourceLocationID, "transfer_update_lines", "transfer", transfer.ID, fmt.Sprintf("lines=%d", len(transferLines)))
	return domain.TransferResponse{Transfer: *updated}, nil
}

// QueueTransfer moves a draft into the pending queue, signalling it is ready
// for the warehouse to pick. No stock moves yet.
func (s *Service) QueueTransfer(ctx context.Context, transferID string) (domain.TransferResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.TransferResponse{}, err
	}

	transfer, err := s.repo.GetTransferByID(ctx, transferID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	if transfer.Status != domain.TransferStatusDraft {
		return domain.TransferResponse{}, fmt.Errorf("%w: only drafts can be queued", store.ErrInvalidStatus)
	}

	transfer.Status = domain.TransferStatusPending
	updated, err := s.repo.UpdateTransfer(ctx, *transfer, nil, domain.Cause{})
	if err != nil {
		return domain.TransferResponse{}, err
	}

	s.logAudit(ctx, transfer.SourceLocationID, "transfer_queue", "transfer", transfer.ID, "status=pending")
	return domain.TransferResponse{Transfer: *updated}, nil
}

// SubmitTransfer ships the transfer: every requested unit moves from the
// source AVAILABLE bucket into RESERVED in one atomic batch. If any line
// lacks stock the whole submission fails and nothing moves.
func (s *Service) SubmitTransfer(ctx context.Context, transferID string) (domain.TransferResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.TransferResponse{}, err
	}

	transfer, err := s.repo.GetTransferByID(ctx, transferID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	if !transfer.Status.Editable() {
		return domain.TransferResponse{}, fmt.Errorf("%w: transfer already shipped or closed", store.ErrInvalidStatus)
	}

	mutations := make([]domain.StockMutation, 0, len(transfer.Lines)*2)
	for i := range transfer.Lines {
		line := &transfer.Lines[i]
		line.ShippedQty = line.RequestedQty
		mutations = append(mutations,
			domain.StockMutation{SKU: line.SKU, LocationID: transfer.SourceLocationID, Bucket: domain.BucketAvailable, Delta: -line.RequestedQty},
			domain.StockMutation{SKU: line.SKU, LocationID: transfer.SourceLocationID, Bucket: domain.BucketReserved, Delta: line.RequestedQty},
		)
	}

	now := time.Now().UTC()
	transfer.Status = domain.TransferStatusInTransit
	transfer.SubmittedAt = &now

	updated, err := s.repo.UpdateTransfer(ctx, *transfer, mutations, domain.Cause{Type: domain.CauseTransferSubmit, ID: transfer.ID})
	if err != nil {
		return domain.TransferResponse{}, err
	}
	s.invalidateStock(ctx, mutations)

	s.logAudit(ctx, transfer.SourceLocationID, "transfer_submit", "transfer", transfer.ID, fmt.Sprintf("number=%s,lines=%d", transfer.TransferNumber, len(transfer.Lines)))
	return domain.TransferResponse{Transfer: *updated}, nil
}

// ReceiveTransfer books arrived units at the destination. Partial receipts
// are allowed and may repeat until the transfer is completed. Received stock
// lands in the destination AVAILABLE bucket, or PENDING_INSPECTION when the
// destination inspects on receipt, in which case a quality inspection is
// opened for the received quantities.
func (s *Service) ReceiveTransfer(ctx context.Context, transferID string, req domain.TransferReceiveRequest) (domain.TransferResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.TransferResponse{}, err
	}

	transfer, err := s.repo.GetTransferByID(ctx, transferID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	if transfer.Status != domain.TransferStatusInTransit {
		return domain.TransferResponse{}, fmt.Errorf("%w: transfer is not in transit", store.ErrInvalidStatus)
	}

	lines, err := normalizeLineRequests(req.Lines)
	if err != nil {
		return domain.TransferResponse{}, err
	}

	destination, err := s.repo.GetLocationByID(ctx, transfer.DestinationLocationID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	destBucket := domain.BucketAvailable
	if destination.InspectOnReceipt {
		destBucket = domain.BucketPendingInspection
	}

	byID := make(map[string]*domain.TransferLine, len(transfer.Lines))
	for i := range transfer.Lines {
		byID[transfer.Lines[i].SKU] = &transfer.Lines[i]
	}

	mutations := make([]domain.StockMutation, 0, len(lines)*2)
	for _, recv := range lines {
		line, ok := byID[recv.SKU]
		if !ok {
			return domain.TransferResponse{}, fmt.Errorf("%w: sku %s is not on this transfer", store.ErrInvalidRequest, recv.SKU)
		}
		if recv.Qty > line.OutstandingReservedQty() {
			return domain.TransferResponse{}, fmt.Errorf("%w: received %d exceeds outstanding %d for %s", store.ErrInvalidQuantity, recv.Qty, line.OutstandingReservedQty(), recv.SKU)
		}
		line.ReceivedQty += recv.Qty
		mutations = append(mutations,
			domain.StockMutation{SKU: recv.SKU, LocationID: transfer.SourceLocationID, Bucket: domain.BucketReserved, Delta: -recv.Qty},
			domain.StockMutation{SKU: recv.SKU, LocationID: transfer.DestinationLocationID, Bucket: destBucket, Delta: recv.Qty},
		)
	}

	updated, err := s.repo.UpdateTransfer(ctx, *transfer, mutations, domain.Cause{Type: domain.CauseTransferReceive, ID: transfer.ID})
	if err != nil {
		return domain.TransferResponse{}, err
	}
	s.invalidateStock(ctx, mutations)

	if destination.InspectOnReceipt {
		s.openStagedInspection(ctx, domain.InspectionSubjectReceiving, transfer.DestinationLocationID, transfer.ID, lines)
	}

	s.logAudit(ctx, transfer.DestinationLocationID, "transfer_receive", "transfer", transfer.ID, fmt.Sprintf("lines=%d,bucket=%s", len(lines), destBucket))
	return domain.TransferResponse{Transfer: *updated}, nil
}

// ReconcileTransfer resolves shipped-but-not-received discrepancies. Each
// reconciliation line either restocks units back into the source AVAILABLE
// bucket or writes them off as lost. A transfer cannot complete while any
// line still has outstanding reserved quantity.
func (s *Service) ReconcileTransfer(ctx context.Context, transferID string, req domain.TransferReconcileRequest) (domain.TransferResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.TransferResponse{}, err
	}

	transfer, err := s.repo.GetTransferByID(ctx, transferID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	if transfer.Status != domain.TransferStatusInTransit {
		return domain.TransferResponse{}, fmt.Errorf("%w: transfer is not in transit", store.ErrInvalidStatus)
	}
	if len(req.Lines) == 0 {
		return domain.TransferResponse{}, store.ErrInvalidRequest
	}

	byID := make(map[string]*domain.TransferLine, len(transfer.Lines))
	for i := range transfer.Lines {
		byID[transfer.Lines[i].SKU] = &transfer.Lines[i]
	}

	type reconcileAction struct {
		line *domain.TransferLine
		qty  int
	}
	restocks := make([]reconcileAction, 0, len(req.Lines))
	writeOffs := make([]reconcileAction, 0, len(req.Lines))
	claimed := make(map[string]int, len(req.Lines))
	for _, rec := range req.Lines {
		sku := normalizeSKU(rec.SKU)
		line, ok := byID[sku]
		if !ok {
			return domain.TransferResponse{}, fmt.Errorf("%w: sku %s is not on this transfer", store.ErrInvalidRequest, sku)
		}
		if rec.Qty < 1 {
			return domain.TransferResponse{}, fmt.Errorf("%w: reconcile qty must be positive", store.ErrInvalidQuantity)
		}
		claimed[sku] += rec.Qty
		if claimed[sku] > line.OutstandingReservedQty() {
			return domain.TransferResponse{}, fmt.Errorf("%w: reconcile %d exceeds outstanding %d for %s", store.ErrInvalidQuantity, claimed[sku], line.OutstandingReservedQty(), sku)
		}

		switch rec.Action {
		case domain.ReconcileActionRestock:
			restocks = append(restocks, reconcileAction{line: line, qty: rec.Qty})
		case domain.ReconcileActionWriteOff:
			writeOffs = append(writeOffs, reconcileAction{line: line, qty: rec.Qty})
		default:
			return domain.TransferResponse{}, fmt.Errorf("%w: unknown reconcile action %q", store.ErrInvalidRequest, rec.Action)
		}
	}

	// Restocks and write-offs are distinct ledger causes, so a mixed request
	// lands as two batches. Line counters are bumped just before their own
	// batch commits, so a failed second batch never leaves counters ahead of
	// the ledger.
	updated := transfer
	if len(restocks) > 0 {
		mutations := make([]domain.StockMutation, 0, len(restocks)*2)
		for _, action := range restocks {
			action.line.RestockedQty += action.qty
			mutations = append(mutations,
				domain.StockMutation{SKU: action.line.SKU, LocationID: transfer.SourceLocationID, Bucket: domain.BucketReserved, Delta: -action.qty},
				domain.StockMutation{SKU: action.line.SKU, LocationID: transfer.SourceLocationID, Bucket: domain.BucketAvailable, Delta: action.qty},
			)
		}
		updated, err = s.repo.UpdateTransfer(ctx, *transfer, mutations, domain.Cause{Type: domain.CauseTransferRestock, ID: transfer.ID})
		if err != nil {
			return domain.TransferResponse{}, err
		}
		transfer.Version = updated.Version
		s.invalidateStock(ctx, mutations)
	}
	if len(writeOffs) > 0 {
		mutations := make([]domain.StockMutation, 0, len(writeOffs))
		for _, action := range writeOffs {
			action.line.WrittenOffQty += action.qty
			mutations = append(mutations,
				domain.StockMutation{SKU: action.line.SKU, LocationID: transfer.SourceLocationID, Bucket: domain.BucketReserved, Delta: -action.qty},
			)
		}
		updated, err = s.repo.UpdateTransfer(ctx, *transfer, mutations, domain.Cause{Type: domain.CauseTransferWriteOff, ID: transfer.ID})
		if err != nil {
			return domain.TransferResponse{}, err
		}
		s.invalidateStock(ctx, mutations)
	}

	s.logAudit(ctx, transfer.SourceLocationID, "transfer_reconcile", "transfer", transfer.ID, fmt.Sprintf("restocks=%d,write_offs=%d", len(restocks), len(writeOffs)))
	return domain.TransferResponse{Transfer: *updated}, nil
}

// CompleteTransfer closes a transfer. Every line must account for all
// shipped units first: received, restocked, or written off.
func (s *Service) CompleteTransfer(ctx context.Context, transferID string) (domain.TransferResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.TransferResponse{}, err
	}

	transfer, err := s.repo.GetTransferByID(ctx, transferID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	if transfer.Status != domain.TransferStatusInTransit {
		return domain.TransferResponse{}, fmt.Errorf("%w: transfer is not in transit", store.ErrInvalidStatus)
	}
	for _, line := range transfer.Lines {
		if line.OutstandingReservedQty() != 0 {
			return domain.TransferResponse{}, fmt.Errorf("%w: %d units of %s unaccounted for", store.ErrUnreconciledDiscrepancy, line.OutstandingReservedQty(), line.SKU)
		}
	}

	now := time.Now().UTC()
	transfer.Status = domain.TransferStatusCompleted
	transfer.CompletedAt = &now

	updated, err := s.repo.UpdateTransfer(ctx, *transfer, nil, domain.Cause{})
	if err != nil {
		return domain.TransferResponse{}, err
	}

	s.logAudit(ctx, transfer.SourceLocationID, "transfer_complete", "transfer", transfer.ID, fmt.Sprintf("number=%s", transfer.TransferNumber))
	return domain.TransferResponse{Transfer: *updated}, nil
}

// CancelTransfer aborts a non-terminal transfer. Units still reserved at the
// source flow back into AVAILABLE; units already received stay at the
// destination.
func (s *Service) CancelTransfer(ctx context.Context, transferID string) (domain.TransferResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.TransferResponse{}, err
	}

	transfer, err := s.repo.GetTransferByID(ctx, transferID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	if transfer.Status.Terminal() {
		return domain.TransferResponse{}, fmt.Errorf("%w: transfer already closed", store.ErrInvalidStatus)
	}

	mutations := make([]domain.StockMutation, 0, len(transfer.Lines)*2)
	if transfer.Status == domain.TransferStatusInTransit {
		for i := range transfer.Lines {
			line := &transfer.Lines[i]
			outstanding := line.OutstandingReservedQty()
			if outstanding < 1 {
				continue
			}
			line.RestockedQty += outstanding
			mutations = append(mutations,
				domain.StockMutation{SKU: line.SKU, LocationID: transfer.SourceLocationID, Bucket: domain.BucketReserved, Delta: -outstanding},
				domain.StockMutation{SKU: line.SKU, LocationID: transfer.SourceLocationID, Bucket: domain.BucketAvailable, Delta: outstanding},
			)
		}
	}

	transfer.Status = domain.TransferStatusCancelled
	updated, err := s.repo.UpdateTransfer(ctx, *transfer, mutations, domain.Cause{Type: domain.CauseTransferCancel, ID: transfer.ID})
	if err != nil {
		return domain.TransferResponse{}, err
	}
	s.invalidateStock(ctx, mutations)

	s.logAudit(ctx, transfer.SourceLocationID, "transfer_cancel", "transfer", transfer.ID, fmt.Sprintf("number=%s", transfer.TransferNumber))
	return domain.TransferResponse{Transfer: *updated}, nil
}

func (s *Service) GetTransfer(ctx context.Context, transferID string) (domain.TransferResponse, error) {
	transfer, err := s.repo.GetTransferByID(ctx, transferID)
	if err != nil {
		return domain.TransferResponse{}, err
	}
	return domain.TransferResponse{Transfer: *transfer}, nil
}

func (s *Service) ListTransfers(ctx context.Context, status string, limit int) (domain.TransferListResponse, error) {
	var filter domain.TransferStatus
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		filter = domain.TransferStatus(trimmed)
		switch filter {
		case domain.TransferStatusDraft, domain.TransferStatusPending, domain.TransferStatusInTransit, domain.TransferStatusCompleted, domain.TransferStatusCancelled:
		default:
			return domain.TransferListResponse{}, store.ErrInvalidRequest
		}
	}

	transfers, err := s.repo.ListTransfers(ctx, filter, limit)
	if err != nil {
		return domain.TransferListResponse{}, err
	}
	return domain.TransferListResponse{Transfers: transfers}, nil
}
