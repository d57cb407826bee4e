package domain

import "time"

// Bucket is one of the mutually exclusive states a quantity of a product at a
// location can occupy. The sum over all buckets is the total physical units
// known to be at that location.
type Bucket string

const (
	BucketAvailable         Bucket = "available"
	BucketPendingInspection Bucket = "pending_inspection"
	BucketFailedInspection  Bucket = "failed_inspection"
	BucketReserved          Bucket = "reserved"
)

func (b Bucket) Valid() bool {
	switch b {
	case BucketAvailable, BucketPendingInspection, BucketFailedInspection, BucketReserved:
		return true
	default:
		return false
	}
}

type LocationKind string

const (
	LocationWarehouse LocationKind = "warehouse"
	LocationStore     LocationKind = "store"
)

type Product struct {
	SKU                 string `json:"sku"`
	Name                string `json:"name"`
	Category            string `json:"category"`
	CostCents           int64  `json:"cost_cents"`
	RetailPriceCents    int64  `json:"retail_price_cents"`
	WholesalePriceCents int64  `json:"wholesale_price_cents"`
	MinStockLevel       int    `json:"min_stock_level"`
	ReorderPoint        int    `json:"reorder_point"`
	Active              bool   `json:"active"`
}

type ProductCreateRequest struct {
	SKU                 string `json:"sku"`
	Name                string `json:"name"`
	Category            string `json:"category"`
	CostCents           int64  `json:"cost_cents"`
	RetailPriceCents    int64  `json:"retail_price_cents"`
	WholesalePriceCents int64  `json:"wholesale_price_cents"`
	MinStockLevel       int    `json:"min_stock_level"`
	ReorderPoint        int    `json:"reorder_point"`
}

type ProductUpdateRequest struct {
	Name                *string `json:"name,omitempty"`
	Category            *string `json:"category,omitempty"`
	CostCents           *int64  `json:"cost_cents,omitempty"`
	RetailPriceCents    *int64  `json:"retail_price_cents,omitempty"`
	WholesalePriceCents *int64  `json:"wholesale_price_cents,omitempty"`
	MinStockLevel       *int    `json:"min_stock_level,omitempty"`
	ReorderPoint        *int    `json:"reorder_point,omitempty"`
	Active              *bool   `json:"active,omitempty"`
}

type Location struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Kind             LocationKind `json:"kind"`
	InspectOnReceipt bool         `json:"inspect_on_receipt"`
	Active           bool         `json:"active"`
	CreatedAt        time.Time    `json:"created_at"`
}

type LocationCreateRequest struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Kind             LocationKind `json:"kind"`
	InspectOnReceipt bool         `json:"inspect_on_receipt"`
}

type LocationUpdateRequest struct {
	Name             *string `json:"name,omitempty"`
	InspectOnReceipt *bool   `json:"inspect_on_receipt,omitempty"`
	Active           *bool   `json:"active,omitempty"`
}

// BucketBreakdown is the full quantity picture for one (product, location)
// pair. Zero values are valid resting states; rows are never deleted.
type BucketBreakdown struct {
	Available         int `json:"available"`
	PendingInspection int `json:"pending_inspection"`
	FailedInspection  int `json:"failed_inspection"`
	Reserved          int `json:"reserved"`
}

func (b BucketBreakdown) Total() int {
	return b.Available + b.PendingInspection + b.FailedInspection + b.Reserved
}

func (b BucketBreakdown) Qty(bucket Bucket) int {
	switch bucket {
	case BucketAvailable:
		return b.Available
	case BucketPendingInspection:
		return b.PendingInspection
	case BucketFailedInspection:
		return b.FailedInspection
	case BucketReserved:
		return b.Reserved
	default:
		return 0
	}
}

func (b *BucketBreakdown) Add(bucket Bucket, delta int) {
	switch bucket {
	case BucketAvailable:
		b.Available += delta
	case BucketPendingInspection:
		b.PendingInspection += delta
	case BucketFailedInspection:
		b.FailedInspection += delta
	case BucketReserved:
		b.Reserved += delta
	}
}

// StockMutation is one bucket delta. Batches of mutations are applied
// all-or-nothing by the repository; a bucket-to-bucket move is two mutations
// in the same batch.
type StockMutation struct {
	SKU        string `json:"sku"`
	LocationID string `json:"location_id"`
	Bucket     Bucket `json:"bucket"`
	Delta      int    `json:"delta"`
}

// Cause identifies the business event behind a ledger mutation.
type Cause struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

const (
	CauseStockReceipt          = "stock_receipt"
	CauseStockWriteOff         = "stock_write_off"
	CauseSale                  = "sale"
	CauseReturnApproval        = "return_approval"
	CauseTransferSubmit        = "transfer_submit"
	CauseTransferReceive       = "transfer_receive"
	CauseTransferCancel        = "transfer_cancel"
	CauseTransferRestock       = "transfer_restock"
	CauseTransferWriteOff      = "transfer_write_off"
	CauseInspectionOpen        = "inspection_open"
	CauseInspectionDisposition = "inspection_disposition"
	CauseInspectionCancel      = "inspection_cancel"
)

// LedgerEntry is one immutable line of the append-only mutation log. The
// current bucket quantities are a projection over these entries.
type LedgerEntry struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	LocationID string    `json:"location_id"`
	Bucket     Bucket    `json:"bucket"`
	Delta      int       `json:"delta"`
	CauseType  string    `json:"cause_type"`
	CauseID    string    `json:"cause_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type StockBreakdownResponse struct {
	SKU        string          `json:"sku"`
	LocationID string          `json:"location_id"`
	Breakdown  BucketBreakdown `json:"breakdown"`
	TotalUnits int             `json:"total_units"`
	AsOf       string          `json:"as_of"`
}

type StockReceiptRequest struct {
	LocationID string `json:"location_id"`
	SKU        string `json:"sku"`
	Qty        int    `json:"qty"`
	Note       string `json:"note,omitempty"`
}

type StockReceiptResponse struct {
	ReceiptID  string          `json:"receipt_id"`
	SKU        string          `json:"sku"`
	LocationID string          `json:"location_id"`
	Bucket     Bucket          `json:"bucket"`
	Qty        int             `json:"qty"`
	Breakdown  BucketBreakdown `json:"breakdown"`
}

type StockWriteOffRequest struct {
	LocationID string `json:"location_id"`
	SKU        string `json:"sku"`
	Bucket     Bucket `json:"bucket"`
	Qty        int    `json:"qty"`
	Reason     string `json:"reason"`
}

type LedgerHistoryResponse struct {
	SKU        string        `json:"sku"`
	LocationID string        `json:"location_id"`
	Entries    []LedgerEntry `json:"entries"`
}

type TransferStatus string

const (
	TransferStatusDraft     TransferStatus = "draft"
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusInTransit TransferStatus = "in_transit"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusCancelled TransferStatus = "cancelled"
)

// Editable reports whether line quantities may still change.
func (s TransferStatus) Editable() bool {
	return s == TransferStatusDraft || s == TransferStatusPending
}

func (s TransferStatus) Terminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusCancelled
}

type TransferLine struct {
	SKU           string `json:"sku"`
	RequestedQty  int    `json:"requested_qty"`
	ShippedQty    int    `json:"shipped_qty"`
	ReceivedQty   int    `json:"received_qty"`
	RestockedQty  int    `json:"restocked_qty"`
	WrittenOffQty int    `json:"written_off_qty"`
}

// OutstandingReservedQty is the quantity still sitting in the source RESERVED
// bucket for this line: shipped units not yet received, restocked, or written
// off. Every line must reach zero before completion.
func (l TransferLine) OutstandingReservedQty() int {
	return l.ShippedQty - l.ReceivedQty - l.RestockedQty - l.WrittenOffQty
}

// DiscrepancyQty is shipped minus received, surfaced for reconciliation.
func (l TransferLine) DiscrepancyQty() int {
	return l.ShippedQty - l.ReceivedQty
}

type Transfer struct {
	ID                    string         `json:"id"`
	TransferNumber        string         `json:"transfer_number"`
	SourceLocationID      string         `json:"source_location_id"`
	DestinationLocationID string         `json:"destination_location_id"`
	Status                TransferStatus `json:"status"`
	RequestedBy           string         `json:"requested_by"`
	Lines                 []TransferLine `json:"lines"`
	Version               int            `json:"version"`
	CreatedAt             time.Time      `json:"created_at"`
	SubmittedAt           *time.Time     `json:"submitted_at,omitempty"`
	CompletedAt           *time.Time     `json:"completed_at,omitempty"`
}

type TransferLineRequest struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type TransferCreateRequest struct {
	SourceLocationID      string                `json:"source_location_id"`
	DestinationLocationID string                `json:"destination_location_id"`
	Lines                 []TransferLineRequest `json:"lines"`
}

type TransferUpdateLinesRequest struct {
	Lines []TransferLineRequest `json:"lines"`
}

type TransferReceiveRequest struct {
	Lines []TransferLineRequest `json:"lines"`
}

const (
	ReconcileActionRestock  = "restock"
	ReconcileActionWriteOff = "write_off"
)

type TransferReconcileLine struct {
	SKU    string `json:"sku"`
	Qty    int    `json:"qty"`
	Action string `json:"action"`
}

type TransferReconcileRequest struct {
	Lines []TransferReconcileLine `json:"lines"`
}

type TransferResponse struct {
	Transfer Transfer `json:"transfer"`
}

type TransferListResponse struct {
	Transfers []Transfer `json:"transfers"`
}

type InspectionStatus string

const (
	InspectionStatusPending    InspectionStatus = "pending"
	InspectionStatusInProgress InspectionStatus = "in_progress"
	InspectionStatusCompleted  InspectionStatus = "completed"
	InspectionStatusCancelled  InspectionStatus = "cancelled"
)

func (s InspectionStatus) Terminal() bool {
	return s == InspectionStatusCompleted || s == InspectionStatusCancelled
}

type InspectionSubject string

const (
	InspectionSubjectReceiving InspectionSubject = "receiving"
	InspectionSubjectReturn    InspectionSubject = "return"
)

type InspectionLine struct {
	SKU          string `json:"sku"`
	InspectedQty int    `json:"inspected_qty"`
	PassedQty    int    `json:"passed_qty"`
	FailedQty    int    `json:"failed_qty"`
}

// PendingQty is the undecided remainder; passed+failed+pending always equals
// inspected.
func (l InspectionLine) PendingQty() int {
	return l.InspectedQty - l.PassedQty - l.FailedQty
}

type Inspection struct {
	ID              string            `json:"id"`
	ReferenceNumber string            `json:"reference_number"`
	Subject         InspectionSubject `json:"subject"`
	LocationID      string            `json:"location_id"`
	SourceRef       string            `json:"source_ref,omitempty"`
	Status          InspectionStatus  `json:"status"`
	Lines           []InspectionLine  `json:"lines"`
	Version         int               `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

type InspectionOpenRequest struct {
	Subject    InspectionSubject     `json:"subject"`
	LocationID string                `json:"location_id"`
	Lines      []TransferLineRequest `json:"lines"`
}

type DispositionRequest struct {
	SKU         string `json:"sku"`
	PassedDelta int    `json:"passed_delta"`
	FailedDelta int    `json:"failed_delta"`
}

type InspectionResponse struct {
	Inspection Inspection `json:"inspection"`
}

type InspectionListResponse struct {
	Inspections []Inspection `json:"inspections"`
}

type ReturnStatus string

const (
	ReturnStatusPending  ReturnStatus = "pending"
	ReturnStatusApproved ReturnStatus = "approved"
	ReturnStatusRejected ReturnStatus = "rejected"
)

type ReturnCondition string

const (
	ReturnConditionResellable      ReturnCondition = "resellable"
	ReturnConditionNeedsInspection ReturnCondition = "needs_inspection"
)

type ReturnLine struct {
	SKU            string          `json:"sku"`
	Qty            int             `json:"qty"`
	Condition      ReturnCondition `json:"condition"`
	UnitPriceCents int64           `json:"unit_price_cents"`
}

type Return struct {
	ID           string       `json:"id"`
	ReturnNumber string       `json:"return_number"`
	SaleID       string       `json:"sale_id"`
	LocationID   string       `json:"location_id"`
	Status       ReturnStatus `json:"status"`
	Lines        []ReturnLine `json:"lines"`
	RefundCents  int64        `json:"refund_cents"`
	InspectionID string       `json:"inspection_id,omitempty"`
	ProcessedBy  string       `json:"processed_by,omitempty"`
	Version      int          `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	ApprovedAt   *time.Time   `json:"approved_at,omitempty"`
}

type ReturnLineRequest struct {
	SKU       string          `json:"sku"`
	Qty       int             `json:"qty"`
	Condition ReturnCondition `json:"condition"`
}

type ReturnInitiateRequest struct {
	SaleID string              `json:"sale_id"`
	Lines  []ReturnLineRequest `json:"lines"`
}

type ReturnResponse struct {
	Return Return `json:"return"`
}

type ReturnListResponse struct {
	Returns []Return `json:"returns"`
}

// RefundObligation is the record emitted on return approval; an external
// payment collaborator consumes it.
type RefundObligation struct {
	ID          string    `json:"id"`
	ReturnID    string    `json:"return_id"`
	SaleID      string    `json:"sale_id"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

const RefundObligationIssued = "issued"

type SaleStatus string

const SaleStatusFinalized SaleStatus = "finalized"

type SaleLine struct {
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Sale struct {
	ID             string     `json:"id"`
	LocationID     string     `json:"location_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Status         SaleStatus `json:"status"`
	TotalCents     int64      `json:"total_cents"`
	CashierName    string     `json:"cashier_name"`
	Lines          []SaleLine `json:"lines"`
	CreatedAt      time.Time  `json:"created_at"`
}

type SaleLineRequest struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type SaleFinalizeRequest struct {
	LocationID     string            `json:"location_id"`
	IdempotencyKey string            `json:"idempotency_key"`
	Lines          []SaleLineRequest `json:"lines"`
}

type SaleResponse struct {
	Sale      Sale `json:"sale"`
	Duplicate bool `json:"duplicate"`
}

type SaleLookupResponse struct {
	Found bool  `json:"found"`
	Sale  *Sale `json:"sale,omitempty"`
}

type ReorderSuggestion struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Available      int    `json:"available"`
	MinStockLevel  int    `json:"min_stock_level"`
	ReorderPoint   int    `json:"reorder_point"`
	RecommendedQty int    `json:"recommended_qty"`
}

type ReorderSuggestionResponse struct {
	LocationID  string              `json:"location_id"`
	GeneratedAt string              `json:"generated_at"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"location_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)
