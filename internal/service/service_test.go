package service

import (
	"context"
	"testing"
	"time"

	"gudangraja/backend/internal/cache"
	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/replenish"
	"gudangraja/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	replenisher := replenish.NewEngine(cache.NoopSuggestionCache{}, 5*time.Second)
	return New(repo, cache.NoopStockCache{}, replenisher, "main-store", 5*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(staffCtx(), domain.ProductCreateRequest{
		SKU:              "SKU-NEW-01",
		Name:             "Teh Botol",
		Category:         "beverage",
		RetailPriceCents: 4500,
	})
	if err == nil {
		t.Fatalf("expected staff product creation to be rejected")
	}

	created, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		SKU:              "sku-new-01",
		Name:             "Teh Botol",
		Category:         "beverage",
		CostCents:        3000,
		RetailPriceCents: 4500,
		MinStockLevel:    10,
		ReorderPoint:     20,
	})
	if err != nil {
		t.Fatalf("admin product creation failed: %v", err)
	}
	if created.SKU != "SKU-NEW-01" {
		t.Fatalf("expected sku to be upper-cased, got %s", created.SKU)
	}
	if !created.Active {
		t.Fatalf("expected new product to be active")
	}
}

func TestUpdateProductPartialFields(t *testing.T) {
	svc := newTestService()

	newPrice := int64(3900)
	updated, err := svc.UpdateProduct(adminCtx(), "SKU-MIE-01", domain.ProductUpdateRequest{
		RetailPriceCents: &newPrice,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.RetailPriceCents != 3900 {
		t.Fatalf("expected retail price 3900, got %d", updated.RetailPriceCents)
	}
	if updated.Name != "Mie Goreng Instan" {
		t.Fatalf("expected name untouched, got %s", updated.Name)
	}
}

func TestCreateLocationAndUpdatePolicy(t *testing.T) {
	svc := newTestService()

	created, err := svc.CreateLocation(adminCtx(), domain.LocationCreateRequest{
		ID:   "gudang-timur",
		Name: "Gudang Timur",
		Kind: domain.LocationWarehouse,
	})
	if err != nil {
		t.Fatalf("create location failed: %v", err)
	}
	if created.InspectOnReceipt {
		t.Fatalf("expected inspect-on-receipt off by default")
	}

	inspect := true
	updated, err := svc.UpdateLocation(adminCtx(), "gudang-timur", domain.LocationUpdateRequest{
		InspectOnReceipt: &inspect,
	})
	if err != nil {
		t.Fatalf("update location failed: %v", err)
	}
	if !updated.InspectOnReceipt {
		t.Fatalf("expected inspect-on-receipt enabled")
	}
}

func TestAuditLogsRecordMutatingOps(t *testing.T) {
	svc := newTestService()

	_, err := svc.ReceiveStock(adminCtx(), domain.StockReceiptRequest{
		LocationID: "main-store",
		SKU:        "SKU-MIE-01",
		Qty:        5,
	})
	if err != nil {
		t.Fatalf("receive stock failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), "main-store", "", 50)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "stock_receipt" && entry.ActorUsername == "admin" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a stock_receipt audit entry")
	}

	if _, err := svc.ListAuditLogs(staffCtx(), "main-store", "", 50); err == nil {
		t.Fatalf("expected staff audit log access to be rejected")
	}
}
