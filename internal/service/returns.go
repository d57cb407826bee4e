package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/store"
	"gudangraja/backend/internal/xid"
)

// InitiateReturn opens a customer return against a finalized sale. Quantities
// are capped per line: across all non-rejected returns of a sale, no SKU may
// exceed what the sale actually sold. Initiation has no ledger effect; stock
// re-enters on approval.
func (s *Service) InitiateReturn(ctx context.Context, req domain.ReturnInitiateRequest) (domain.ReturnResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return domain.ReturnResponse{}, err
	}

	saleID := strings.TrimSpace(req.SaleID)
	if saleID == "" || len(req.Lines) == 0 {
		return domain.ReturnResponse{}, store.ErrInvalidRequest
	}

	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	soldQty := make(map[string]int, len(sale.Lines))
	unitPrice := make(map[string]int64, len(sale.Lines))
	for _, line := range sale.Lines {
		soldQty[line.SKU] += line.Qty
		unitPrice[line.SKU] = line.UnitPriceCents
	}

	alreadyReturned, err := s.repo.GetReturnedQtyBySale(ctx, saleID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	requested := make(map[string]int, len(req.Lines))
	returnLines := make([]domain.ReturnLine, 0, len(req.Lines))
	refundCents := int64(0)
	for _, line := range req.Lines {
		sku := normalizeSKU(line.SKU)
		if sku == "" {
			return domain.ReturnResponse{}, store.ErrInvalidRequest
		}
		if line.Qty < 1 {
			return domain.ReturnResponse{}, fmt.Errorf("%w: return qty for %s must be positive", store.ErrInvalidQuantity, sku)
		}

		condition := line.Condition
		if condition == "" {
			condition = domain.ReturnConditionResellable
		}
		if condition != domain.ReturnConditionResellable && condition != domain.ReturnConditionNeedsInspection {
			return domain.ReturnResponse{}, fmt.Errorf("%w: unknown return condition %q", store.ErrInvalidRequest, line.Condition)
		}

		sold, wasSold := soldQty[sku]
		if !wasSold {
			return domain.ReturnResponse{}, fmt.Errorf("%w: sku %s is not on sale %s", store.ErrInvalidRequest, sku, saleID)
		}
		requested[sku] += line.Qty
		if requested[sku]+alreadyReturned[sku] > sold {
			return domain.ReturnResponse{}, fmt.Errorf("%w: return of %s exceeds sold quantity %d", store.ErrInvalidQuantity, sku, sold)
		}

		returnLines = append(returnLines, domain.ReturnLine{
			SKU:            sku,
			Qty:            line.Qty,
			Condition:      condition,
			UnitPriceCents: unitPrice[sku],
		})
		refundCents += int64(line.Qty) * unitPrice[sku]
	}

	ret := domain.Return{
		ID:           xid.New("ret"),
		ReturnNumber: docNumber("RET"),
		SaleID:       saleID,
		LocationID:   sale.LocationID,
		Status:       domain.ReturnStatusPending,
		Lines:        returnLines,
		RefundCents:  refundCents,
		CreatedAt:    time.Now().UTC(),
	}

	created, err := s.repo.CreateReturn(ctx, ret)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	s.logAudit(ctx, sale.LocationID, "return_initiate", "return", created.ID, fmt.Sprintf("number=%s,sale=%s,refund=%d", created.ReturnNumber, saleID, refundCents))
	return domain.ReturnResponse{Return: *created}, nil
}

// ApproveReturn accepts a pending return: resellable units re-enter
// AVAILABLE, units needing inspection are staged into PENDING_INSPECTION with
// an inspection opened over them, and a refund obligation is issued for the
// original sale price. Approving an already-approved return is a no-op that
// returns the recorded outcome.
func (s *Service) ApproveReturn(ctx context.Context, returnID string) (domain.ReturnResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	ret, err := s.repo.GetReturnByID(ctx, returnID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	if ret.Status == domain.ReturnStatusApproved {
		return domain.ReturnResponse{Return: *ret}, nil
	}
	if ret.Status == domain.ReturnStatusRejected {
		return domain.ReturnResponse{}, fmt.Errorf("%w: return was rejected", store.ErrInvalidStatus)
	}

	mutations := make([]domain.StockMutation, 0, len(ret.Lines))
	inspectionLines := make([]domain.TransferLineRequest, 0, len(ret.Lines))
	for _, line := range ret.Lines {
		bucket := domain.BucketAvailable
		if line.Condition == domain.ReturnConditionNeedsInspection {
			bucket = domain.BucketPendingInspection
			inspectionLines = append(inspectionLines, domain.TransferLineRequest{SKU: line.SKU, Qty: line.Qty})
		}
		mutations = append(mutations, domain.StockMutation{
			SKU:        line.SKU,
			LocationID: ret.LocationID,
			Bucket:     bucket,
			Delta:      line.Qty,
		})
	}

	now := time.Now().UTC()
	ret.Status = domain.ReturnStatusApproved
	ret.ApprovedAt = &now
	ret.ProcessedBy = actor.Username

	updated, err := s.repo.UpdateReturn(ctx, *ret, mutations, domain.Cause{Type: domain.CauseReturnApproval, ID: ret.ID})
	if err != nil {
		// A rival approval may have won the version guard. If the return is
		// approved now, the restock is already committed exactly once; hand
		// back the recorded outcome instead of an error.
		if errors.Is(err, store.ErrContention) {
			if current, getErr := s.repo.GetReturnByID(ctx, returnID); getErr == nil && current.Status == domain.ReturnStatusApproved {
				return domain.ReturnResponse{Return: *current}, nil
			}
		}
		return domain.ReturnResponse{}, err
	}
	s.invalidateStock(ctx, mutations)

	if len(inspectionLines) > 0 {
		if inspectionID := s.openStagedInspection(ctx, domain.InspectionSubjectReturn, ret.LocationID, ret.ID, inspectionLines); inspectionID != "" {
			updated.InspectionID = inspectionID
			if saved, err := s.repo.UpdateReturn(ctx, *updated, nil, domain.Cause{}); err == nil {
				updated = saved
			} else {
				logrus.Warnf("[returns] failed to link inspection %s to return %s: %v", inspectionID, ret.ID, err)
			}
		}
	}

	if err := s.repo.CreateRefundObligation(ctx, domain.RefundObligation{
		ID:          xid.New("refund"),
		ReturnID:    ret.ID,
		SaleID:      ret.SaleID,
		AmountCents: ret.RefundCents,
		Status:      domain.RefundObligationIssued,
		CreatedAt:   now,
	}); err != nil {
		logrus.Warnf("[returns] failed to issue refund obligation return=%s amount=%d: %v", ret.ID, ret.RefundCents, err)
	}

	s.logAudit(ctx, ret.LocationID, "return_approve", "return", ret.ID, fmt.Sprintf("number=%s,refund=%d", ret.ReturnNumber, ret.RefundCents))
	return domain.ReturnResponse{Return: *updated}, nil
}

// RejectReturn closes a pending return with no ledger effect and no refund.
func (s *Service) RejectReturn(ctx context.Context, returnID string) (domain.ReturnResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	ret, err := s.repo.GetReturnByID(ctx, returnID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	if ret.Status == domain.ReturnStatusRejected {
		return domain.ReturnResponse{Return: *ret}, nil
	}
	if ret.Status != domain.ReturnStatusPending {
		return domain.ReturnResponse{}, fmt.Errorf("%w: only pending returns can be rejected", store.ErrInvalidStatus)
	}

	ret.Status = domain.ReturnStatusRejected
	ret.ProcessedBy = actor.Username

	updated, err := s.repo.UpdateReturn(ctx, *ret, nil, domain.Cause{})
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	s.logAudit(ctx, ret.LocationID, "return_reject", "return", ret.ID, fmt.Sprintf("number=%s", ret.ReturnNumber))
	return domain.ReturnResponse{Return: *updated}, nil
}

func (s *Service) GetReturn(ctx context.Context, returnID string) (domain.ReturnResponse, error) {
	ret, err := s.repo.GetReturnByID(ctx, returnID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	return domain.ReturnResponse{Return: *ret}, nil
}

func (s *Service) ListReturns(ctx context.Context, status string, limit int) (domain.ReturnListResponse, error) {
	var filter domain.ReturnStatus
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		filter = domain.ReturnStatus(trimmed)
		switch filter {
		case domain.ReturnStatusPending, domain.ReturnStatusApproved, domain.ReturnStatusRejected:
		default:
			return domain.ReturnListResponse{}, store.ErrInvalidRequest
		}
	}

	returns, err := s.repo.ListReturns(ctx, filter, limit)
	if err != nil {
		return domain.ReturnListResponse{}, err
	}
	return domain.ReturnListResponse{Returns: returns}, nil
}

func (s *Service) ListRefundObligations(ctx context.Context, returnID string) ([]domain.RefundObligation, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListRefundObligations(ctx, strings.TrimSpace(returnID))
}
