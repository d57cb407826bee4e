package store

import (
	"context"
	"errors"
	"time"

	"gudangraja/backend/internal/domain"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInvalidStatus           = errors.New("invalid status transition")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrInvalidQuantity         = errors.New("invalid quantity")
	ErrOverDisposition         = errors.New("over disposition")
	ErrIncompleteInspection    = errors.New("incomplete inspection")
	ErrUnreconciledDiscrepancy = errors.New("unreconciled discrepancy")
	ErrContention              = errors.New("contention, retry")
)

// Repository is the data-access contract shared by the in-memory and postgres
// implementations. Methods that accept a mutation batch commit the document
// write and the ledger mutations as one atomic unit: either every bucket delta
// applies and an entry is appended for each, or nothing changes. A batch whose
// net effect would drive any bucket below zero fails with ErrInsufficientStock
// and leaves state untouched.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)

	CreateLocation(ctx context.Context, location domain.Location) (*domain.Location, error)
	GetLocationByID(ctx context.Context, id string) (*domain.Location, error)
	ListLocations(ctx context.Context) ([]domain.Location, error)
	UpdateLocation(ctx context.Context, location domain.Location) (*domain.Location, error)

	ApplyStockMutations(ctx context.Context, mutations []domain.StockMutation, cause domain.Cause) error
	GetStockBreakdown(ctx context.Context, sku string, locationID string) (domain.BucketBreakdown, error)
	ListLedgerEntries(ctx context.Context, sku string, locationID string, limit int) ([]domain.LedgerEntry, error)

	CreateTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error)
	GetTransferByID(ctx context.Context, id string) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, status domain.TransferStatus, limit int) ([]domain.Transfer, error)
	UpdateTransfer(ctx context.Context, transfer domain.Transfer, mutations []domain.StockMutation, cause domain.Cause) (*domain.Transfer, error)

	CreateInspection(ctx context.Context, inspection domain.Inspection, mutations []domain.StockMutation, cause domain.Cause) (*domain.Inspection, error)
	GetInspectionByID(ctx context.Context, id string) (*domain.Inspection, error)
	ListInspections(ctx context.Context, status domain.InspectionStatus, limit int) ([]domain.Inspection, error)
	UpdateInspection(ctx context.Context, inspection domain.Inspection, mutations []domain.StockMutation, cause domain.Cause) (*domain.Inspection, error)

	CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error)
	GetReturnByID(ctx context.Context, id string) (*domain.Return, error)
	ListReturns(ctx context.Context, status domain.ReturnStatus, limit int) ([]domain.Return, error)
	UpdateReturn(ctx context.Context, ret domain.Return, mutations []domain.StockMutation, cause domain.Cause) (*domain.Return, error)
	GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error)
	CreateRefundObligation(ctx context.Context, obligation domain.RefundObligation) error
	ListRefundObligations(ctx context.Context, returnID string) ([]domain.RefundObligation, error)

	CreateSale(ctx context.Context, sale domain.Sale, mutations []domain.StockMutation, cause domain.Cause) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, locationID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
