package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/store"
	"gudangraja/backend/internal/xid"
)

// Store is the in-memory repository used for tests and dev mode. A single
// RWMutex serializes mutation batches, which is the in-memory analogue of the
// serializable transaction the postgres store uses: a whole batch is validated
// against current quantities before any of it is applied, so a concurrent
// reader never observes a partially applied move. Document updates carry the
// version the caller read; a stale version is rejected as contention.
type Store struct {
	mu                sync.RWMutex
	products          map[string]domain.Product
	locations         map[string]domain.Location
	stock             map[string]domain.BucketBreakdown
	ledger            []domain.LedgerEntry
	transfersByID     map[string]domain.Transfer
	inspectionsByID   map[string]domain.Inspection
	returnsByID       map[string]domain.Return
	salesByID         map[string]*domain.Sale
	salesByIdem       map[string]*domain.Sale
	refundObligations []domain.RefundObligation
	auditLogs         []domain.AuditLog
	usersByUsername   map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning. These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logrus.Warn("[memory-store] using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", CostCents: 2700, RetailPriceCents: 3500, WholesalePriceCents: 3100, MinStockLevel: 20, ReorderPoint: 40, Active: true},
		{SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", CostCents: 23000, RetailPriceCents: 26500, WholesalePriceCents: 24800, MinStockLevel: 15, ReorderPoint: 30, Active: true},
		{SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", Category: "dairy", CostCents: 13600, RetailPriceCents: 18900, WholesalePriceCents: 16200, MinStockLevel: 10, ReorderPoint: 25, Active: true},
		{SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage", CostCents: 1700, RetailPriceCents: 2600, WholesalePriceCents: 2100, MinStockLevel: 30, ReorderPoint: 60, Active: true},
		{SKU: "SKU-GULA-01", Name: "Gula 1kg", Category: "grocery", CostCents: 15300, RetailPriceCents: 17400, WholesalePriceCents: 16100, MinStockLevel: 10, ReorderPoint: 25, Active: true},
		{SKU: "SKU-SABUN-01", Name: "Sabun Mandi", Category: "household", CostCents: 5000, RetailPriceCents: 7400, WholesalePriceCents: 6200, MinStockLevel: 12, ReorderPoint: 24, Active: true},
	}

	now := time.Now().UTC()
	locations := map[string]domain.Location{
		"gudang-pusat": {ID: "gudang-pusat", Name: "Gudang Pusat", Kind: domain.LocationWarehouse, Active: true, CreatedAt: now},
		"main-store":   {ID: "main-store", Name: "Toko Utama", Kind: domain.LocationStore, Active: true, CreatedAt: now},
		"outlet-store": {ID: "outlet-store", Name: "Outlet Cabang", Kind: domain.LocationStore, InspectOnReceipt: true, Active: true, CreatedAt: now},
	}

	productMap := make(map[string]domain.Product, len(products))
	stock := make(map[string]domain.BucketBreakdown)
	for _, p := range products {
		productMap[p.SKU] = p
		stock[stockKey(p.SKU, "gudang-pusat")] = domain.BucketBreakdown{Available: 200}
		stock[stockKey(p.SKU, "main-store")] = domain.BucketBreakdown{Available: 50}
	}

	return &Store{
		products:          productMap,
		locations:         locations,
		stock:             stock,
		ledger:            make([]domain.LedgerEntry, 0, 256),
		transfersByID:     make(map[string]domain.Transfer),
		inspectionsByID:   make(map[string]domain.Inspection),
		returnsByID:       make(map[string]domain.Return),
		salesByID:         make(map[string]*domain.Sale),
		salesByIdem:       make(map[string]*domain.Sale),
		refundObligations: make([]domain.RefundObligation, 0, 32),
		auditLogs:         make([]domain.AuditLog, 0, 128),
		usersByUsername:   seedUsers(),
	}
}

func stockKey(sku, locationID string) string {
	return sku + "|" + locationID
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidRequest
	}
	if product.RetailPriceCents < 1 || product.CostCents < 0 || product.WholesalePriceCents < 0 {
		return nil, store.ErrInvalidRequest
	}
	if product.MinStockLevel < 0 || product.ReorderPoint < 0 {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.products[product.SKU]; exists {
		return nil, store.ErrInvalidRequest
	}

	product.Active = true
	s.products[product.SKU] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.Category == "" || product.RetailPriceCents < 1 {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.products[product.SKU]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.SKU] = product
	updated := product
	return &updated, nil
}

func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if p, ok := s.products[sku]; ok && p.Active {
			result[sku] = p
		}
	}
	return result, nil
}

func (s *Store) CreateLocation(_ context.Context, location domain.Location) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if location.ID == "" || location.Name == "" {
		return nil, store.ErrInvalidRequest
	}
	if location.Kind != domain.LocationWarehouse && location.Kind != domain.LocationStore {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.locations[location.ID]; exists {
		return nil, store.ErrInvalidRequest
	}

	location.Active = true
	if location.CreatedAt.IsZero() {
		location.CreatedAt = time.Now().UTC()
	}
	s.locations[location.ID] = location
	created := location
	return &created, nil
}

func (s *Store) GetLocationByID(_ context.Context, id string) (*domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	location, exists := s.locations[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyLocation := location
	return &copyLocation, nil
}

func (s *Store) ListLocations(_ context.Context) ([]domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locations := make([]domain.Location, 0, len(s.locations))
	for _, l := range s.locations {
		locations = append(locations, l)
	}
	slices.SortFunc(locations, func(a, b domain.Location) int {
		return strings.Compare(a.ID, b.ID)
	})
	return locations, nil
}

func (s *Store) UpdateLocation(_ context.Context, location domain.Location) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if location.ID == "" || location.Name == "" {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.locations[location.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.locations[location.ID] = location
	updated := location
	return &updated, nil
}

// applyMutationsLocked validates an entire batch against current quantities
// and applies it only if every resulting bucket stays non-negative. Callers
// must hold the write lock.
func (s *Store) applyMutationsLocked(mutations []domain.StockMutation, cause domain.Cause) error {
	if len(mutations) == 0 {
		return nil
	}

	staged := make(map[string]domain.BucketBreakdown, len(mutations))
	for _, m := range mutations {
		if m.SKU == "" || m.LocationID == "" || !m.Bucket.Valid() {
			return store.ErrInvalidRequest
		}
		if _, exists := s.products[m.SKU]; !exists {
			return fmt.Errorf("%w: sku %s", store.ErrNotFound, m.SKU)
		}
		if _, exists := s.locations[m.LocationID]; !exists {
			return fmt.Errorf("%w: location %s", store.ErrNotFound, m.LocationID)
		}

		key := stockKey(m.SKU, m.LocationID)
		breakdown, ok := staged[key]
		if !ok {
			breakdown = s.stock[key]
		}
		breakdown.Add(m.Bucket, m.Delta)
		if breakdown.Qty(m.Bucket) < 0 {
			return fmt.Errorf("%w: %s at %s (%s)", store.ErrInsufficientStock, m.SKU, m.LocationID, m.Bucket)
		}
		staged[key] = breakdown
	}

	now := time.Now().UTC()
	for key, breakdown := range staged {
		s.stock[key] = breakdown
	}
	for _, m := range mutations {
		s.ledger = append(s.ledger, domain.LedgerEntry{
			ID:         xid.New("le"),
			SKU:        m.SKU,
			LocationID: m.LocationID,
			Bucket:     m.Bucket,
			Delta:      m.Delta,
			CauseType:  cause.Type,
			CauseID:    cause.ID,
			CreatedAt:  now,
		})
	}
	return nil
}

func (s *Store) ApplyStockMutations(_ context.Context, mutations []domain.StockMutation, cause domain.Cause) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyMutationsLocked(mutations, cause)
}

func (s *Store) GetStockBreakdown(_ context.Context, sku string, locationID string) (domain.BucketBreakdown, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.products[sku]; !exists {
		return domain.BucketBreakdown{}, store.ErrNotFound
	}
	if _, exists := s.locations[locationID]; !exists {
		return domain.BucketBreakdown{}, store.ErrNotFound
	}
	return s.stock[stockKey(sku, locationID)], nil
}

func (s *Store) ListLedgerEntries(_ context.Context, sku string, locationID string, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.LedgerEntry, 0, limit)
	for i := len(s.ledger) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.ledger[i]
		if sku != "" && entry.SKU != sku {
			continue
		}
		if locationID != "" && entry.LocationID != locationID {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateTransfer(_ context.Context, transfer domain.Transfer) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if transfer.ID == "" || transfer.SourceLocationID == "" || transfer.DestinationLocationID == "" || len(transfer.Lines) == 0 {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.transfersByID[transfer.ID]; exists {
		return nil, store.ErrInvalidRequest
	}

	s.transfersByID[transfer.ID] = cloneTransfer(transfer)
	created := cloneTransfer(transfer)
	return &created, nil
}

func (s *Store) GetTransferByID(_ context.Context, id string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfer, exists := s.transfersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneTransfer(transfer)
	return &copied, nil
}

func (s *Store) ListTransfers(_ context.Context, status domain.TransferStatus, limit int) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Transfer, 0, limit)
	for _, t := range s.transfersByID {
		if status != "" && t.Status != status {
			continue
		}
		result = append(result, cloneTransfer(t))
	}
	slices.SortFunc(result, func(a, b domain.Transfer) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpdateTransfer(_ context.Context, transfer domain.Transfer, mutations []domain.StockMutation, cause domain.Cause) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.transfersByID[transfer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if stored.Version != transfer.Version {
		return nil, fmt.Errorf("%w: transfer %s was modified concurrently", store.ErrContention, transfer.ID)
	}
	if err := s.applyMutationsLocked(mutations, cause); err != nil {
		return nil, err
	}

	transfer.Version++
	s.transfersByID[transfer.ID] = cloneTransfer(transfer)
	updated := cloneTransfer(transfer)
	return &updated, nil
}

func (s *Store) CreateInspection(_ context.Context, inspection domain.Inspection, mutations []domain.StockMutation, cause domain.Cause) (*domain.Inspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inspection.ID == "" || inspection.LocationID == "" || len(inspection.Lines) == 0 {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.inspectionsByID[inspection.ID]; exists {
		return nil, store.ErrInvalidRequest
	}
	if err := s.applyMutationsLocked(mutations, cause); err != nil {
		return nil, err
	}

	s.inspectionsByID[inspection.ID] = cloneInspection(inspection)
	created := cloneInspection(inspection)
	return &created, nil
}

func (s *Store) GetInspectionByID(_ context.Context, id string) (*domain.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inspection, exists := s.inspectionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneInspection(inspection)
	return &copied, nil
}

func (s *Store) ListInspections(_ context.Context, status domain.InspectionStatus, limit int) ([]domain.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Inspection, 0, limit)
	for _, insp := range s.inspectionsByID {
		if status != "" && insp.Status != status {
			continue
		}
		result = append(result, cloneInspection(insp))
	}
	slices.SortFunc(result, func(a, b domain.Inspection) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpdateInspection(_ context.Context, inspection domain.Inspection, mutations []domain.StockMutation, cause domain.Cause) (*domain.Inspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.inspectionsByID[inspection.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if stored.Version != inspection.Version {
		return nil, fmt.Errorf("%w: inspection %s was modified concurrently", store.ErrContention, inspection.ID)
	}
	if err := s.applyMutationsLocked(mutations, cause); err != nil {
		return nil, err
	}

	inspection.Version++
	s.inspectionsByID[inspection.ID] = cloneInspection(inspection)
	updated := cloneInspection(inspection)
	return &updated, nil
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ret.ID == "" || ret.SaleID == "" || ret.LocationID == "" || len(ret.Lines) == 0 {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.returnsByID[ret.ID]; exists {
		return nil, store.ErrInvalidRequest
	}

	s.returnsByID[ret.ID] = cloneReturn(ret)
	created := cloneReturn(ret)
	return &created, nil
}

func (s *Store) GetReturnByID(_ context.Context, id string) (*domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, exists := s.returnsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneReturn(ret)
	return &copied, nil
}

func (s *Store) ListReturns(_ context.Context, status domain.ReturnStatus, limit int) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Return, 0, limit)
	for _, ret := range s.returnsByID {
		if status != "" && ret.Status != status {
			continue
		}
		result = append(result, cloneReturn(ret))
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpdateReturn(_ context.Context, ret domain.Return, mutations []domain.StockMutation, cause domain.Cause) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.returnsByID[ret.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if stored.Version != ret.Version {
		return nil, fmt.Errorf("%w: return %s was modified concurrently", store.ErrContention, ret.ID)
	}
	if err := s.applyMutationsLocked(mutations, cause); err != nil {
		return nil, err
	}

	ret.Version++
	s.returnsByID[ret.ID] = cloneReturn(ret)
	updated := cloneReturn(ret)
	return &updated, nil
}

// GetReturnedQtyBySale sums the per-SKU quantity of all non-rejected returns
// against a sale. Pending returns count too: a quantity under review may not
// be claimed again by a second return.
func (s *Store) GetReturnedQtyBySale(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int)
	for _, ret := range s.returnsByID {
		if ret.SaleID != saleID || ret.Status == domain.ReturnStatusRejected {
			continue
		}
		for _, line := range ret.Lines {
			result[line.SKU] += line.Qty
		}
	}
	return result, nil
}

func (s *Store) CreateRefundObligation(_ context.Context, obligation domain.RefundObligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obligation.ID == "" || obligation.ReturnID == "" || obligation.AmountCents < 1 {
		return store.ErrInvalidRequest
	}
	s.refundObligations = append(s.refundObligations, obligation)
	return nil
}

func (s *Store) ListRefundObligations(_ context.Context, returnID string) ([]domain.RefundObligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RefundObligation, 0, 8)
	for _, ob := range s.refundObligations {
		if returnID != "" && ob.ReturnID != returnID {
			continue
		}
		result = append(result, ob)
	}
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, mutations []domain.StockMutation, cause domain.Cause) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" || sale.IdempotencyKey == "" || len(sale.Lines) == 0 {
		return nil, store.ErrInvalidRequest
	}
	if _, exists := s.salesByIdem[sale.IdempotencyKey]; exists {
		return nil, store.ErrInvalidRequest
	}
	if err := s.applyMutationsLocked(mutations, cause); err != nil {
		return nil, err
	}

	stored := cloneSale(sale)
	s.salesByID[sale.ID] = &stored
	s.salesByIdem[sale.IdempotencyKey] = &stored
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneSale(*sale)
	return &copied, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByIdem[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneSale(*sale)
	return &copied, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, locationID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if locationID != "" && entry.LocationID != locationID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidRequest
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidRequest
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneTransfer(t domain.Transfer) domain.Transfer {
	copied := t
	copied.Lines = slices.Clone(t.Lines)
	if t.SubmittedAt != nil {
		at := *t.SubmittedAt
		copied.SubmittedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		copied.CompletedAt = &at
	}
	return copied
}

func cloneInspection(i domain.Inspection) domain.Inspection {
	copied := i
	copied.Lines = slices.Clone(i.Lines)
	if i.CompletedAt != nil {
		at := *i.CompletedAt
		copied.CompletedAt = &at
	}
	return copied
}

func cloneReturn(r domain.Return) domain.Return {
	copied := r
	copied.Lines = slices.Clone(r.Lines)
	if r.ApprovedAt != nil {
		at := *r.ApprovedAt
		copied.ApprovedAt = &at
	}
	return copied
}

func cloneSale(s domain.Sale) domain.Sale {
	copied := s
	copied.Lines = slices.Clone(s.Lines)
	return copied
}
