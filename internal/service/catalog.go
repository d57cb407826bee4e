package service

import (
	"context"
	"fmt"
	"strings"

	"gudangraja/backend/internal/domain"
	"gudangraja/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, sku string) (domain.Product, error) {
	sku = normalizeSKU(sku)
	if sku == "" {
		return domain.Product{}, store.ErrInvalidRequest
	}
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = normalizeSKU(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.SKU == "" || req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidRequest
	}
	if req.RetailPriceCents < 1 || req.CostCents < 0 || req.WholesalePriceCents < 0 {
		return domain.Product{}, store.ErrInvalidRequest
	}
	if req.MinStockLevel < 0 || req.ReorderPoint < 0 {
		return domain.Product{}, store.ErrInvalidRequest
	}

	product := domain.Product{
		SKU:                 req.SKU,
		Name:                req.Name,
		Category:            req.Category,
		CostCents:           req.CostCents,
		RetailPriceCents:    req.RetailPriceCents,
		WholesalePriceCents: req.WholesalePriceCents,
		MinStockLevel:       req.MinStockLevel,
		ReorderPoint:        req.ReorderPoint,
		Active:              true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "", "product_create", "product", created.SKU, fmt.Sprintf("name=%s,retail=%d", created.Name, created.RetailPriceCents))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	sku = normalizeSKU(sku)
	if sku == "" {
		return domain.Product{}, store.ErrInvalidRequest
	}

	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.Category = category
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.CostCents = *req.CostCents
	}
	if req.RetailPriceCents != nil {
		if *req.RetailPriceCents < 1 {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.RetailPriceCents = *req.RetailPriceCents
	}
	if req.WholesalePriceCents != nil {
		if *req.WholesalePriceCents < 0 {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.WholesalePriceCents = *req.WholesalePriceCents
	}
	if req.MinStockLevel != nil {
		if *req.MinStockLevel < 0 {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.MinStockLevel = *req.MinStockLevel
	}
	if req.ReorderPoint != nil {
		if *req.ReorderPoint < 0 {
			return domain.Product{}, store.ErrInvalidRequest
		}
		updated.ReorderPoint = *req.ReorderPoint
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "", "product_update", "product", saved.SKU, fmt.Sprintf("active=%t,retail=%d", saved.Active, saved.RetailPriceCents))
	return *saved, nil
}

func (s *Service) ListLocations(ctx context.Context) ([]domain.Location, error) {
	return s.repo.ListLocations(ctx)
}

func (s *Service) CreateLocation(ctx context.Context, req domain.LocationCreateRequest) (domain.Location, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Location{}, err
	}

	req.ID = strings.ToLower(strings.TrimSpace(req.ID))
	req.Name = strings.TrimSpace(req.Name)
	if req.ID == "" || req.Name == "" {
		return domain.Location{}, store.ErrInvalidRequest
	}
	if req.Kind != domain.LocationWarehouse && req.Kind != domain.LocationStore {
		return domain.Location{}, store.ErrInvalidRequest
	}

	created, err := s.repo.CreateLocation(ctx, domain.Location{
		ID:               req.ID,
		Name:             req.Name,
		Kind:             req.Kind,
		InspectOnReceipt: req.InspectOnReceipt,
		Active:           true,
	})
	if err != nil {
		return domain.Location{}, err
	}

	s.logAudit(ctx, created.ID, "location_create", "location", created.ID, fmt.Sprintf("kind=%s,inspect_on_receipt=%t", created.Kind, created.InspectOnReceipt))
	return *created, nil
}

func (s *Service) UpdateLocation(ctx context.Context, id string, req domain.LocationUpdateRequest) (domain.Location, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Location{}, err
	}

	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return domain.Location{}, store.ErrInvalidRequest
	}

	existing, err := s.repo.GetLocationByID(ctx, id)
	if err != nil {
		return domain.Location{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Location{}, store.ErrInvalidRequest
		}
		updated.Name = name
	}
	if req.InspectOnReceipt != nil {
		updated.InspectOnReceipt = *req.InspectOnReceipt
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateLocation(ctx, updated)
	if err != nil {
		return domain.Location{}, err
	}

	s.logAudit(ctx, saved.ID, "location_update", "location", saved.ID, fmt.Sprintf("active=%t,inspect_on_receipt=%t", saved.Active, saved.InspectOnReceipt))
	return *saved, nil
}
