package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/store"
	"gudangraja/backend/internal/xid"
)

// OpenInspection starts an ad-hoc quality inspection: the named quantities
// move from AVAILABLE into PENDING_INSPECTION atomically with the inspection
// record.
func (s *Service) OpenInspection(ctx context.Context, req domain.InspectionOpenRequest) (domain.InspectionResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.InspectionResponse{}, err
	}

	if req.Subject == "" {
		req.Subject = domain.InspectionSubjectReceiving
	}
	if req.Subject != domain.InspectionSubjectReceiving && req.Subject != domain.InspectionSubjectReturn {
		return domain.InspectionResponse{}, store.ErrInvalidRequest
	}
	locationID := strings.ToLower(strings.TrimSpace(req.LocationID))
	if locationID == "" {
		locationID = s.defaultLocationID
	}
	if _, err := s.repo.GetLocationByID(ctx, locationID); err != nil {
		return domain.InspectionResponse{}, err
	}

	lines, err := normalizeLineRequests(req.Lines)
	if err != nil {
		return domain.InspectionResponse{}, err
	}
	if err := s.verifyKnownSKUs(ctx, lines); err != nil {
		return domain.InspectionResponse{}, err
	}
	for _, line := range lines {
		breakdown, err := s.repo.GetStockBreakdown(ctx, line.SKU, locationID)
		if err != nil {
			return domain.InspectionResponse{}, err
		}
		if line.Qty > breakdown.Available {
			return domain.InspectionResponse{}, fmt.Errorf("%w: cannot stage %d of %s, only %d available at %s", store.ErrInvalidQuantity, line.Qty, line.SKU, breakdown.Available, locationID)
		}
	}

	inspection := buildInspection(req.Subject, locationID, "", lines)
	mutations := make([]domain.StockMutation, 0, len(lines)*2)
	for _, line := range lines {
		mutations = append(mutations,
			domain.StockMutation{SKU: line.SKU, LocationID: locationID, Bucket: domain.BucketAvailable, Delta: -line.Qty},
			domain.StockMutation{SKU: line.SKU, LocationID: locationID, Bucket: domain.BucketPendingInspection, Delta: line.Qty},
		)
	}

	created, err := s.repo.CreateInspection(ctx, inspection, mutations, domain.Cause{Type: domain.CauseInspectionOpen, ID: inspection.ID})
	if err != nil {
		return domain.InspectionResponse{}, err
	}
	s.invalidateStock(ctx, mutations)

	s.logAudit(ctx, locationID, "inspection_open", "inspection", created.ID, fmt.Sprintf("reference=%s,subject=%s,lines=%d", created.ReferenceNumber, created.Subject, len(created.Lines)))
	return domain.InspectionResponse{Inspection: *created}, nil
}

// openStagedInspection opens an inspection over stock that is already sitting
// in PENDING_INSPECTION (staged by a transfer receipt, a stock receipt, or a
// return approval), so no bucket move happens here. The parent operation has
// already committed; a failure only loses the inspection paperwork, which is
// logged and can be reopened by hand.
func (s *Service) openStagedInspection(ctx context.Context, subject domain.InspectionSubject, locationID string, sourceRef string, lines []domain.TransferLineRequest) string {
	inspection := buildInspection(subject, locationID, sourceRef, lines)
	created, err := s.repo.CreateInspection(ctx, inspection, nil, domain.Cause{})
	if err != nil {
		logrus.Warnf("[inspection] failed to open staged inspection location=%s source=%s: %v", locationID, sourceRef, err)
		return ""
	}

	s.logAudit(ctx, locationID, "inspection_open", "inspection", created.ID, fmt.Sprintf("reference=%s,subject=%s,source=%s", created.ReferenceNumber, created.Subject, sourceRef))
	return created.ID
}

func buildInspection(subject domain.InspectionSubject, locationID string, sourceRef string, lines []domain.TransferLineRequest) domain.Inspection {
	inspectionLines := make([]domain.InspectionLine, 0, len(lines))
	for _, line := range lines {
		inspectionLines = append(inspectionLines, domain.InspectionLine{SKU: line.SKU, InspectedQty: line.Qty})
	}

	return domain.Inspection{
		ID:              xid.New("insp"),
		ReferenceNumber: docNumber("QC"),
		Subject:         subject,
		LocationID:      locationID,
		SourceRef:       sourceRef,
		Status:          domain.InspectionStatusPending,
		Lines:           inspectionLines,
		CreatedAt:       time.Now().UTC(),
	}
}

// RecordDisposition marks part of an inspection line as passed or failed.
// Passed units return to AVAILABLE, failed units move to FAILED_INSPECTION.
// The summed dispositions of a line can never exceed its inspected quantity.
func (s *Service) RecordDisposition(ctx context.Context, inspectionID string, req domain.DispositionRequest) (domain.InspectionResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.InspectionResponse{}, err
	}

	inspection, err := s.repo.GetInspectionByID(ctx, inspectionID)
	if err != nil {
		return domain.InspectionResponse{}, err
	}
	if inspection.Status.Terminal() {
		return domain.InspectionResponse{}, fmt.Errorf("%w: inspection already closed", store.ErrInvalidStatus)
	}

	sku := normalizeSKU(req.SKU)
	var line *domain.InspectionLine
	for i := range inspection.Lines {
		if inspection.Lines[i].SKU == sku {
			line = &inspection.Lines[i]
			break
		}
	}
	if line == nil {
		return domain.InspectionResponse{}, fmt.Errorf("%w: sku %s is not on this inspection", store.ErrInvalidRequest, sku)
	}

	if req.PassedDelta < 0 || req.FailedDelta < 0 || req.PassedDelta+req.FailedDelta < 1 {
		return domain.InspectionResponse{}, fmt.Errorf("%w: disposition deltas must be non-negative and sum to at least one", store.ErrInvalidQuantity)
	}
	if req.PassedDelta+req.FailedDelta > line.PendingQty() {
		return domain.InspectionResponse{}, fmt.Errorf("%w: disposition %d exceeds pending %d for %s", store.ErrOverDisposition, req.PassedDelta+req.FailedDelta, line.PendingQty(), sku)
	}

	mutations := make([]domain.StockMutation, 0, 4)
	if req.PassedDelta > 0 {
		line.PassedQty += req.PassedDelta
		mutations = append(mutations,
			domain.StockMutation{SKU: sku, LocationID: inspection.LocationID, Bucket: domain.BucketPendingInspection, Delta: -req.PassedDelta},
			domain.StockMutation{SKU: sku, LocationID: inspection.LocationID, Bucket: domain.BucketAvailable, Delta: req.PassedDelta},
		)
	}
	if req.FailedDelta > 0 {
		line.FailedQty += req.FailedDelta
		mutations = append(mutations,
			domain.StockMutation{SKU: sku, LocationID: inspection.LocationID, Bucket: domain.BucketPendingInspection, Delta: -req.FailedDelta},
			domain.StockMutation{SKU: sku, LocationID: inspection.LocationID, Bucket: domain.BucketFailedInspection, Delta: req.FailedDelta},
		)
	}
	inspection.Status = domain.InspectionStatusInProgress

	updated, err := s.repo.UpdateInspection(ctx, *inspection, mutations, domain.Cause{Type: domain.CauseInspectionDisposition, ID: inspection.ID})
	if err != nil {
		return domain.InspectionResponse{}, err
	}
	s.invalidateStock(ctx, mutations)

	s.logAudit(ctx, inspection.LocationID, "inspection_disposition", "inspection", inspection.ID, fmt.Sprintf("sku=%s,passed=%d,failed=%d", sku, req.PassedDelta, req.FailedDelta))
	return domain.InspectionResponse{Inspection: *updated}, nil
}

// CompleteInspection closes an inspection whose every line has been fully
// dispositioned.
func (s *Service) CompleteInspection(ctx context.Context, inspectionID string) (domain.InspectionResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.InspectionResponse{}, err
	}

	inspection, err := s.repo.GetInspectionByID(ctx, inspectionID)
	if err != nil {
		return domain.InspectionResponse{}, err
	}
	if inspection.Status.Terminal() {
		return domain.InspectionResponse{}, fmt.Errorf("%w: inspection already closed", store.ErrInvalidStatus)
	}
	for _, line := range inspection.Lines {
		if line.PendingQty() != 0 {
			return domain.InspectionResponse{}, fmt.Errorf("%w: %d units of %s not yet dispositioned", store.ErrIncompleteInspection, line.PendingQty(), line.SKU)
		}
	}

	now := time.Now().UTC()
	inspection.Status = domain.InspectionStatusCompleted
	inspection.CompletedAt = &now

	updated, err := s.repo.UpdateInspection(ctx, *inspection, nil, domain.Cause{})
	if err != nil {
		return domain.InspectionResponse{}, err
	}

	s.logAudit(ctx, inspection.LocationID, "inspection_complete", "inspection", inspection.ID, fmt.Sprintf("reference=%s", inspection.ReferenceNumber))
	return domain.InspectionResponse{Inspection: *updated}, nil
}

// CancelInspection aborts a running inspection. Undecided units flow back to
// AVAILABLE; units already dispositioned keep their outcome.
func (s *Service) CancelInspection(ctx context.Context, inspectionID string) (domain.InspectionResponse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.InspectionResponse{}, err
	}

	inspection, err := s.repo.GetInspectionByID(ctx, inspectionID)
	if err != nil {
		return domain.InspectionResponse{}, err
	}
	if inspection.Status.Terminal() {
		return domain.InspectionResponse{}, fmt.Errorf("%w: inspection already closed", store.ErrInvalidStatus)
	}

	mutations := make([]domain.StockMutation, 0, len(inspection.Lines)*2)
	for _, line := range inspection.Lines {
		pending := line.PendingQty()
		if pending < 1 {
			continue
		}
		mutations = append(mutations,
			domain.StockMutation{SKU: line.SKU, LocationID: inspection.LocationID, Bucket: domain.BucketPendingInspection, Delta: -pending},
			domain.StockMutation{SKU: line.SKU, LocationID: inspection.LocationID, Bucket: domain.BucketAvailable, Delta: pending},
		)
	}

	now := time.Now().UTC()
	inspection.Status = domain.InspectionStatusCancelled
	inspection.CompletedAt = &now

	updated, err := s.repo.UpdateInspection(ctx, *inspection, mutations, domain.Cause{Type: domain.CauseInspectionCancel, ID: inspection.ID})
	if err != nil {
		return domain.InspectionResponse{}, err
	}
	s.invalidateStock(ctx, mutations)

	s.logAudit(ctx, inspection.LocationID, "inspection_cancel", "inspection", inspection.ID, fmt.Sprintf("reference=%s", inspection.ReferenceNumber))
	return domain.InspectionResponse{Inspection: *updated}, nil
}

func (s *Service) GetInspection(ctx context.Context, inspectionID string) (domain.InspectionResponse, error) {
	inspection, err := s.repo.GetInspectionByID(ctx, inspectionID)
	if err != nil {
		return domain.InspectionResponse{}, err
	}
	return domain.InspectionResponse{Inspection: *inspection}, nil
}

func (s *Service) ListInspections(ctx context.Context, status string, limit int) (domain.InspectionListResponse, error) {
	var filter domain.InspectionStatus
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		filter = domain.InspectionStatus(trimmed)
		switch filter {
		case domain.InspectionStatusPending, domain.InspectionStatusInProgress, domain.InspectionStatusCompleted, domain.InspectionStatusCancelled:
		default:
			return domain.InspectionListResponse{}, store.ErrInvalidRequest
		}
	}

	inspections, err := s.repo.ListInspections(ctx, filter, limit)
	if err != nil {
		return domain.InspectionListResponse{}, err
	}
	return domain.InspectionListResponse{Inspections: inspections}, nil
}
