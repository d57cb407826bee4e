package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/store"
	"gudangraja/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, cost_cents, retail_price_cents, wholesale_price_cents,
			min_stock_level, reorder_point, active
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.Category, &p.CostCents, &p.RetailPriceCents,
			&p.WholesalePriceCents, &p.MinStockLevel, &p.ReorderPoint, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" {
		return nil, fmt.Errorf("%w: sku and name required", store.ErrInvalidRequest)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, category, cost_cents, retail_price_cents, wholesale_price_cents,
			min_stock_level, reorder_point, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
	`, product.SKU, product.Name, product.Category, product.CostCents, product.RetailPriceCents,
		product.WholesalePriceCents, product.MinStockLevel, product.ReorderPoint, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku already exists", store.ErrInvalidRequest)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT sku, name, category, cost_cents, retail_price_cents, wholesale_price_cents,
			min_stock_level, reorder_point, active
		FROM products
		WHERE sku = $1
	`, sku).Scan(&p.SKU, &p.Name, &p.Category, &p.CostCents, &p.RetailPriceCents,
		&p.WholesalePriceCents, &p.MinStockLevel, &p.ReorderPoint, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, cost_cents = $4, retail_price_cents = $5,
			wholesale_price_cents = $6, min_stock_level = $7, reorder_point = $8,
			active = $9, updated_at = now()
		WHERE sku = $1
	`, product.SKU, product.Name, product.Category, product.CostCents, product.RetailPriceCents,
		product.WholesalePriceCents, product.MinStockLevel, product.ReorderPoint, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, cost_cents, retail_price_cents, wholesale_price_cents,
			min_stock_level, reorder_point, active
		FROM products
		WHERE sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.Category, &p.CostCents, &p.RetailPriceCents,
			&p.WholesalePriceCents, &p.MinStockLevel, &p.ReorderPoint, &p.Active); err != nil {
			return nil, err
		}
		result[p.SKU] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CreateLocation(ctx context.Context, location domain.Location) (*domain.Location, error) {
	if location.ID == "" || location.Name == "" {
		return nil, fmt.Errorf("%w: id and name required", store.ErrInvalidRequest)
	}
	if location.CreatedAt.IsZero() {
		location.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, kind, inspect_on_receipt, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, location.ID, location.Name, location.Kind, location.InspectOnReceipt, location.Active, location.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: location id already exists", store.ErrInvalidRequest)
		}
		return nil, err
	}

	created := location
	return &created, nil
}

func (s *Store) GetLocationByID(ctx context.Context, id string) (*domain.Location, error) {
	var loc domain.Location
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, inspect_on_receipt, active, created_at
		FROM locations
		WHERE id = $1
	`, id).Scan(&loc.ID, &loc.Name, &loc.Kind, &loc.InspectOnReceipt, &loc.Active, &loc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	loc.CreatedAt = loc.CreatedAt.UTC()
	return &loc, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, inspect_on_receipt, active, created_at
		FROM locations
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make([]domain.Location, 0, 16)
	for rows.Next() {
		var loc domain.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Kind, &loc.InspectOnReceipt, &loc.Active, &loc.CreatedAt); err != nil {
			return nil, err
		}
		loc.CreatedAt = loc.CreatedAt.UTC()
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locations, nil
}

func (s *Store) UpdateLocation(ctx context.Context, location domain.Location) (*domain.Location, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE locations
		SET name = $2, kind = $3, inspect_on_receipt = $4, active = $5
		WHERE id = $1
	`, location.ID, location.Name, location.Kind, location.InspectOnReceipt, location.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := location
	return &updated, nil
}

func (s *Store) ApplyStockMutations(ctx context.Context, mutations []domain.StockMutation, cause domain.Cause) error {
	if len(mutations) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyMutationsTx(ctx, tx, mutations, cause); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return translateTxErr(err)
	}
	return nil
}

// applyMutationsTx applies a mutation batch inside an open transaction. Each
// bucket row is upserted with its delta and the resulting quantity checked;
// any negative result aborts the whole batch. One ledger entry is written per
// mutation.
func applyMutationsTx(ctx context.Context, tx *sql.Tx, mutations []domain.StockMutation, cause domain.Cause) error {
	now := time.Now().UTC()
	for _, m := range mutations {
		var qty int
		err := tx.QueryRowContext(ctx, `
			INSERT INTO inventory_records (sku, location_id, bucket, qty, updated_at)
			VALUES ($1,$2,$3,$4,now())
			ON CONFLICT (sku, location_id, bucket)
			DO UPDATE SET qty = inventory_records.qty + EXCLUDED.qty, updated_at = now()
			RETURNING qty
		`, m.SKU, m.LocationID, m.Bucket, m.Delta).Scan(&qty)
		if err != nil {
			return translateTxErr(err)
		}
		if qty < 0 {
			return fmt.Errorf("%w: %s at %s bucket %s", store.ErrInsufficientStock, m.SKU, m.LocationID, m.Bucket)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (id, sku, location_id, bucket, delta, cause_type, cause_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, xid.New("le"), m.SKU, m.LocationID, m.Bucket, m.Delta, cause.Type, cause.ID, now)
		if err != nil {
			return translateTxErr(err)
		}
	}
	return nil
}

func (s *Store) GetStockBreakdown(ctx context.Context, sku string, locationID string) (domain.BucketBreakdown, error) {
	var breakdown domain.BucketBreakdown

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE sku = $1)
			AND EXISTS (SELECT 1 FROM locations WHERE id = $2)
	`, sku, locationID).Scan(&exists)
	if err != nil {
		return breakdown, err
	}
	if !exists {
		return breakdown, store.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, qty
		FROM inventory_records
		WHERE sku = $1 AND location_id = $2
	`, sku, locationID)
	if err != nil {
		return breakdown, err
	}
	defer rows.Close()

	for rows.Next() {
		var bucket domain.Bucket
		var qty int
		if err := rows.Scan(&bucket, &qty); err != nil {
			return breakdown, err
		}
		breakdown.Add(bucket, qty)
	}
	if err := rows.Err(); err != nil {
		return breakdown, err
	}
	return breakdown, nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, sku string, locationID string, limit int) ([]domain.LedgerEntry, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, location_id, bucket, delta, cause_type, cause_id, created_at
		FROM ledger_entries
		WHERE ($1 = '' OR sku = $1)
			AND ($2 = '' OR location_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, sku, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.SKU, &e.LocationID, &e.Bucket, &e.Delta, &e.CauseType, &e.CauseID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error) {
	if transfer.ID == "" || len(transfer.Lines) == 0 {
		return nil, fmt.Errorf("%w: transfer id and lines required", store.ErrInvalidRequest)
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfers (id, transfer_number, source_location_id, destination_location_id,
			status, requested_by, version, created_at, submitted_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, transfer.ID, transfer.TransferNumber, transfer.SourceLocationID, transfer.DestinationLocationID,
		transfer.Status, transfer.RequestedBy, transfer.Version, transfer.CreatedAt, nullTime(transfer.SubmittedAt), nullTime(transfer.CompletedAt))
	if err != nil {
		return nil, translateTxErr(err)
	}

	if err := insertTransferLines(ctx, tx, transfer.ID, transfer.Lines); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxErr(err)
	}
	created := transfer
	return &created, nil
}

func insertTransferLines(ctx context.Context, tx *sql.Tx, transferID string, lines []domain.TransferLine) error {
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transfer_lines (transfer_id, sku, requested_qty, shipped_qty, received_qty, restocked_qty, written_off_qty)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, transferID, line.SKU, line.RequestedQty, line.ShippedQty, line.ReceivedQty, line.RestockedQty, line.WrittenOffQty)
		if err != nil {
			return translateTxErr(err)
		}
	}
	return nil
}

func (s *Store) GetTransferByID(ctx context.Context, id string) (*domain.Transfer, error) {
	transfer, err := s.scanTransfer(ctx, s.db.QueryRowContext(ctx, `
		SELECT id, transfer_number, source_location_id, destination_location_id,
			status, requested_by, version, created_at, submitted_at, completed_at
		FROM transfers
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	lines, err := s.loadTransferLines(ctx, transfer.ID)
	if err != nil {
		return nil, err
	}
	transfer.Lines = lines
	return transfer, nil
}

func (s *Store) scanTransfer(_ context.Context, row *sql.Row) (*domain.Transfer, error) {
	var t domain.Transfer
	var submittedAt, completedAt sql.NullTime
	err := row.Scan(&t.ID, &t.TransferNumber, &t.SourceLocationID, &t.DestinationLocationID,
		&t.Status, &t.RequestedBy, &t.Version, &t.CreatedAt, &submittedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	if submittedAt.Valid {
		at := submittedAt.Time.UTC()
		t.SubmittedAt = &at
	}
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		t.CompletedAt = &at
	}
	return &t, nil
}

func (s *Store) loadTransferLines(ctx context.Context, transferID string) ([]domain.TransferLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, requested_qty, shipped_qty, received_qty, restocked_qty, written_off_qty
		FROM transfer_lines
		WHERE transfer_id = $1
		ORDER BY sku
	`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.TransferLine, 0, 8)
	for rows.Next() {
		var line domain.TransferLine
		if err := rows.Scan(&line.SKU, &line.RequestedQty, &line.ShippedQty, &line.ReceivedQty, &line.RestockedQty, &line.WrittenOffQty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ListTransfers(ctx context.Context, status domain.TransferStatus, limit int) ([]domain.Transfer, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transfer_number, source_location_id, destination_location_id,
			status, requested_by, version, created_at, submitted_at, completed_at
		FROM transfers
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0, limit)
	for rows.Next() {
		var t domain.Transfer
		var submittedAt, completedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.TransferNumber, &t.SourceLocationID, &t.DestinationLocationID,
			&t.Status, &t.RequestedBy, &t.Version, &t.CreatedAt, &submittedAt, &completedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		if submittedAt.Valid {
			at := submittedAt.Time.UTC()
			t.SubmittedAt = &at
		}
		if completedAt.Valid {
			at := completedAt.Time.UTC()
			t.CompletedAt = &at
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range transfers {
		lines, err := s.loadTransferLines(ctx, transfers[i].ID)
		if err != nil {
			return nil, err
		}
		transfers[i].Lines = lines
	}
	return transfers, nil
}

// UpdateTransfer writes the document and its mutation batch in one
// transaction. The write is guarded by the version the caller read; a stale
// version means another update landed in between and nothing is committed.
func (s *Store) UpdateTransfer(ctx context.Context, transfer domain.Transfer, mutations []domain.StockMutation, cause domain.Cause) (*domain.Transfer, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE transfers
		SET status = $2, submitted_at = $3, completed_at = $4, version = version + 1
		WHERE id = $1 AND version = $5
	`, transfer.ID, transfer.Status, nullTime(transfer.SubmittedAt), nullTime(transfer.CompletedAt), transfer.Version)
	if err != nil {
		return nil, translateTxErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, staleOrMissing(ctx, tx, "transfers", transfer.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transfer_lines WHERE transfer_id = $1`, transfer.ID); err != nil {
		return nil, translateTxErr(err)
	}
	if err := insertTransferLines(ctx, tx, transfer.ID, transfer.Lines); err != nil {
		return nil, err
	}

	if err := applyMutationsTx(ctx, tx, mutations, cause); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxErr(err)
	}
	updated := transfer
	updated.Version++
	return &updated, nil
}

func (s *Store) CreateInspection(ctx context.Context, inspection domain.Inspection, mutations []domain.StockMutation, cause domain.Cause) (*domain.Inspection, error) {
	if inspection.ID == "" || len(inspection.Lines) == 0 {
		return nil, fmt.Errorf("%w: inspection id and lines required", store.ErrInvalidRequest)
	}
	if inspection.CreatedAt.IsZero() {
		inspection.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inspections (id, reference_number, subject, location_id, source_ref, status, version, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, inspection.ID, inspection.ReferenceNumber, inspection.Subject, inspection.LocationID,
		nullIfEmpty(inspection.SourceRef), inspection.Status, inspection.Version, inspection.CreatedAt, nullTime(inspection.CompletedAt))
	if err != nil {
		return nil, translateTxErr(err)
	}

	if err := insertInspectionLines(ctx, tx, inspection.ID, inspection.Lines); err != nil {
		return nil, err
	}

	if err := applyMutationsTx(ctx, tx, mutations, cause); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxErr(err)
	}
	created := inspection
	return &created, nil
}

func insertInspectionLines(ctx context.Context, tx *sql.Tx, inspectionID string, lines []domain.InspectionLine) error {
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inspection_lines (inspection_id, sku, inspected_qty, passed_qty, failed_qty)
			VALUES ($1,$2,$3,$4,$5)
		`, inspectionID, line.SKU, line.InspectedQty, line.PassedQty, line.FailedQty)
		if err != nil {
			return translateTxErr(err)
		}
	}
	return nil
}

func (s *Store) GetInspectionByID(ctx context.Context, id string) (*domain.Inspection, error) {
	var insp domain.Inspection
	var sourceRef sql.NullString
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, reference_number, subject, location_id, source_ref, status, version, created_at, completed_at
		FROM inspections
		WHERE id = $1
	`, id).Scan(&insp.ID, &insp.ReferenceNumber, &insp.Subject, &insp.LocationID, &sourceRef, &insp.Status, &insp.Version, &insp.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	insp.CreatedAt = insp.CreatedAt.UTC()
	if sourceRef.Valid {
		insp.SourceRef = sourceRef.String
	}
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		insp.CompletedAt = &at
	}

	lines, err := s.loadInspectionLines(ctx, insp.ID)
	if err != nil {
		return nil, err
	}
	insp.Lines = lines
	return &insp, nil
}

func (s *Store) loadInspectionLines(ctx context.Context, inspectionID string) ([]domain.InspectionLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, inspected_qty, passed_qty, failed_qty
		FROM inspection_lines
		WHERE inspection_id = $1
		ORDER BY sku
	`, inspectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.InspectionLine, 0, 8)
	for rows.Next() {
		var line domain.InspectionLine
		if err := rows.Scan(&line.SKU, &line.InspectedQty, &line.PassedQty, &line.FailedQty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ListInspections(ctx context.Context, status domain.InspectionStatus, limit int) ([]domain.Inspection, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference_number, subject, location_id, source_ref, status, version, created_at, completed_at
		FROM inspections
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inspections := make([]domain.Inspection, 0, limit)
	for rows.Next() {
		var insp domain.Inspection
		var sourceRef sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&insp.ID, &insp.ReferenceNumber, &insp.Subject, &insp.LocationID, &sourceRef, &insp.Status, &insp.Version, &insp.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		insp.CreatedAt = insp.CreatedAt.UTC()
		if sourceRef.Valid {
			insp.SourceRef = sourceRef.String
		}
		if completedAt.Valid {
			at := completedAt.Time.UTC()
			insp.CompletedAt = &at
		}
		inspections = append(inspections, insp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range inspections {
		lines, err := s.loadInspectionLines(ctx, inspections[i].ID)
		if err != nil {
			return nil, err
		}
		inspections[i].Lines = lines
	}
	return inspections, nil
}

func (s *Store) UpdateInspection(ctx context.Context, inspection domain.Inspection, mutations []domain.StockMutation, cause domain.Cause) (*domain.Inspection, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE inspections
		SET status = $2, completed_at = $3, version = version + 1
		WHERE id = $1 AND version = $4
	`, inspection.ID, inspection.Status, nullTime(inspection.CompletedAt), inspection.Version)
	if err != nil {
		return nil, translateTxErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, staleOrMissing(ctx, tx, "inspections", inspection.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM inspection_lines WHERE inspection_id = $1`, inspection.ID); err != nil {
		return nil, translateTxErr(err)
	}
	if err := insertInspectionLines(ctx, tx, inspection.ID, inspection.Lines); err != nil {
		return nil, err
	}

	if err := applyMutationsTx(ctx, tx, mutations, cause); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxErr(err)
	}
	updated := inspection
	updated.Version++
	return &updated, nil
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error) {
	if ret.ID == "" || len(ret.Lines) == 0 {
		return nil, fmt.Errorf("%w: return id and lines required", store.ErrInvalidRequest)
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO returns (id, return_number, sale_id, location_id, status, refund_cents,
			inspection_id, processed_by, version, created_at, approved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, ret.ID, ret.ReturnNumber, ret.SaleID, ret.LocationID, ret.Status, ret.RefundCents,
		nullIfEmpty(ret.InspectionID), nullIfEmpty(ret.ProcessedBy), ret.Version, ret.CreatedAt, nullTime(ret.ApprovedAt))
	if err != nil {
		return nil, translateTxErr(err)
	}

	if err := insertReturnLines(ctx, tx, ret.ID, ret.Lines); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxErr(err)
	}
	created := ret
	return &created, nil
}

func insertReturnLines(ctx context.Context, tx *sql.Tx, returnID string, lines []domain.ReturnLine) error {
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO return_lines (return_id, sku, qty, condition, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, returnID, line.SKU, line.Qty, line.Condition, line.UnitPriceCents)
		if err != nil {
			return translateTxErr(err)
		}
	}
	return nil
}

func (s *Store) GetReturnByID(ctx context.Context, id string) (*domain.Return, error) {
	var ret domain.Return
	var inspectionID, processedBy sql.NullString
	var approvedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, return_number, sale_id, location_id, status, refund_cents,
			inspection_id, processed_by, version, created_at, approved_at
		FROM returns
		WHERE id = $1
	`, id).Scan(&ret.ID, &ret.ReturnNumber, &ret.SaleID, &ret.LocationID, &ret.Status, &ret.RefundCents,
		&inspectionID, &processedBy, &ret.Version, &ret.CreatedAt, &approvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	ret.CreatedAt = ret.CreatedAt.UTC()
	if inspectionID.Valid {
		ret.InspectionID = inspectionID.String
	}
	if processedBy.Valid {
		ret.ProcessedBy = processedBy.String
	}
	if approvedAt.Valid {
		at := approvedAt.Time.UTC()
		ret.ApprovedAt = &at
	}

	lines, err := s.loadReturnLines(ctx, ret.ID)
	if err != nil {
		return nil, err
	}
	ret.Lines = lines
	return &ret, nil
}

func (s *Store) loadReturnLines(ctx context.Context, returnID string) ([]domain.ReturnLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, qty, condition, unit_price_cents
		FROM return_lines
		WHERE return_id = $1
		ORDER BY sku
	`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.ReturnLine, 0, 4)
	for rows.Next() {
		var line domain.ReturnLine
		if err := rows.Scan(&line.SKU, &line.Qty, &line.Condition, &line.UnitPriceCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ListReturns(ctx context.Context, status domain.ReturnStatus, limit int) ([]domain.Return, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, return_number, sale_id, location_id, status, refund_cents,
			inspection_id, processed_by, version, created_at, approved_at
		FROM returns
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.Return, 0, limit)
	for rows.Next() {
		var ret domain.Return
		var inspectionID, processedBy sql.NullString
		var approvedAt sql.NullTime
		if err := rows.Scan(&ret.ID, &ret.ReturnNumber, &ret.SaleID, &ret.LocationID, &ret.Status, &ret.RefundCents,
			&inspectionID, &processedBy, &ret.Version, &ret.CreatedAt, &approvedAt); err != nil {
			return nil, err
		}
		ret.CreatedAt = ret.CreatedAt.UTC()
		if inspectionID.Valid {
			ret.InspectionID = inspectionID.String
		}
		if processedBy.Valid {
			ret.ProcessedBy = processedBy.String
		}
		if approvedAt.Valid {
			at := approvedAt.Time.UTC()
			ret.ApprovedAt = &at
		}
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range returns {
		lines, err := s.loadReturnLines(ctx, returns[i].ID)
		if err != nil {
			return nil, err
		}
		returns[i].Lines = lines
	}
	return returns, nil
}

func (s *Store) UpdateReturn(ctx context.Context, ret domain.Return, mutations []domain.StockMutation, cause domain.Cause) (*domain.Return, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE returns
		SET status = $2, inspection_id = $3, processed_by = $4, approved_at = $5, version = version + 1
		WHERE id = $1 AND version = $6
	`, ret.ID, ret.Status, nullIfEmpty(ret.InspectionID), nullIfEmpty(ret.ProcessedBy), nullTime(ret.ApprovedAt), ret.Version)
	if err != nil {
		return nil, translateTxErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, staleOrMissing(ctx, tx, "returns", ret.ID)
	}

	if err := applyMutationsTx(ctx, tx, mutations, cause); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxErr(err)
	}
	updated := ret
	updated.Version++
	return &updated, nil
}

func (s *Store) GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rl.sku, COALESCE(SUM(rl.qty), 0)
		FROM return_lines rl
		JOIN returns r ON r.id = rl.return_id
		WHERE r.sale_id = $1 AND r.status <> $2
		GROUP BY rl.sku
	`, saleID, domain.ReturnStatusRejected)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var sku string
		var qty int
		if err := rows.Scan(&sku, &qty); err != nil {
			return nil, err
		}
		result[sku] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateRefundObligation(ctx context.Context, obligation domain.RefundObligation) error {
	if obligation.ID == "" {
		obligation.ID = xid.New("refund")
	}
	if obligation.CreatedAt.IsZero() {
		obligation.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refund_obligations (id, return_id, sale_id, amount_cents, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, obligation.ID, obligation.ReturnID, obligation.SaleID, obligation.AmountCents, obligation.Status, obligation.CreatedAt)
	return translateTxErr(err)
}

func (s *Store) ListRefundObligations(ctx context.Context, returnID string) ([]domain.RefundObligation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, return_id, sale_id, amount_cents, status, created_at
		FROM refund_obligations
		WHERE ($1 = '' OR return_id = $1)
		ORDER BY created_at DESC
	`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	obligations := make([]domain.RefundObligation, 0, 4)
	for rows.Next() {
		var ob domain.RefundObligation
		if err := rows.Scan(&ob.ID, &ob.ReturnID, &ob.SaleID, &ob.AmountCents, &ob.Status, &ob.CreatedAt); err != nil {
			return nil, err
		}
		ob.CreatedAt = ob.CreatedAt.UTC()
		obligations = append(obligations, ob)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return obligations, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, mutations []domain.StockMutation, cause domain.Cause) (*domain.Sale, error) {
	if sale.ID == "" || sale.IdempotencyKey == "" || len(sale.Lines) == 0 {
		return nil, fmt.Errorf("%w: sale id, idempotency key, and lines required", store.ErrInvalidRequest)
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, location_id, idempotency_key, status, total_cents, cashier_name, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.LocationID, sale.IdempotencyKey, sale.Status, sale.TotalCents, sale.CashierName, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: idempotency key already used", store.ErrInvalidRequest)
		}
		return nil, translateTxErr(err)
	}

	for _, line := range sale.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, sku, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4)
		`, sale.ID, line.SKU, line.Qty, line.UnitPriceCents)
		if err != nil {
			return nil, translateTxErr(err)
		}
	}

	if err := applyMutationsTx(ctx, tx, mutations, cause); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxErr(err)
	}
	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, `WHERE id = $1`, id)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, `WHERE idempotency_key = $1`, key)
}

func (s *Store) findSale(ctx context.Context, where string, arg any) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, location_id, idempotency_key, status, total_cents, cashier_name, created_at
		FROM sales `+where,
		arg).Scan(&sale.ID, &sale.LocationID, &sale.IdempotencyKey, &sale.Status, &sale.TotalCents, &sale.CashierName, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, qty, unit_price_cents
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY sku
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.SKU, &line.Qty, &line.UnitPriceCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sale.Lines = lines
	return &sale, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, location_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.LocationID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, locationID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR location_id = $1)
			AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, locationID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.LocationID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return fmt.Errorf("%w: username and password required", store.ErrInvalidRequest)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username already exists", store.ErrInvalidRequest)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// staleOrMissing tells a version-guard miss apart from a missing row. A stale
// version is retryable contention; the caller re-reads and tries again.
func staleOrMissing(ctx context.Context, tx *sql.Tx, table string, id string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return fmt.Errorf("%w: %s row %s was modified concurrently", store.ErrContention, table, id)
}

// translateTxErr maps postgres error codes to the store sentinels: foreign key
// violations mean a referenced sku or location does not exist, serialization
// failures and deadlocks are retryable contention.
func translateTxErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.ConstraintName)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", store.ErrContention, pgErr.Code)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
