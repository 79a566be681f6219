package masterdata

import (
	"context"
	"fmt"
	"strings"
)

// service implements Service interface
type service struct {
	repo Repository
}

// NewService creates a new master data service
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Vendor operations
func (s *service) ListVendors(ctx context.Context, filters ListFilters) ([]Vendor, error) {
	return s.repo.ListVendors(ctx, normalizeFilters(filters))
}

func (s *service) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	if id <= 0 {
		return Vendor{}, fmt.Errorf("%w: invalid vendor ID", ErrValidation)
	}
	return s.repo.GetVendor(ctx, id)
}

func (s *service) CreateVendor(ctx context.Context, vendor Vendor) (Vendor, error) {
	if err := s.validateVendor(ctx, vendor); err != nil {
		return Vendor{}, err
	}
	vendor.IsActive = true
	return s.repo.CreateVendor(ctx, vendor)
}

// Product operations
func (s *service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, error) {
	return s.repo.ListProducts(ctx, normalizeFilters(filters))
}

func (s *service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product ID", ErrValidation)
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *service) CreateProduct(ctx context.Context, product Product) (Product, error) {
	if err := s.validateProduct(product); err != nil {
		return Product{}, err
	}
	product.ManufacturerCode = strings.TrimSpace(product.ManufacturerCode)
	product.IsActive = true
	return s.repo.CreateProduct(ctx, product)
}

// Location operations
func (s *service) ListLocations(ctx context.Context, filters ListFilters) ([]Location, error) {
	return s.repo.ListLocations(ctx, normalizeFilters(filters))
}

func (s *service) GetLocation(ctx context.Context, id int64) (Location, error) {
	if id <= 0 {
		return Location{}, fmt.Errorf("%w: invalid location ID", ErrValidation)
	}
	return s.repo.GetLocation(ctx, id)
}

func (s *service) CreateLocation(ctx context.Context, location Location) (Location, error) {
	if strings.TrimSpace(location.Code) == "" || strings.TrimSpace(location.Name) == "" {
		return Location{}, fmt.Errorf("%w: location code and name are required", ErrValidation)
	}
	switch location.Usage {
	case LocationSupplier, LocationInternal:
	case "":
		location.Usage = LocationInternal
	default:
		return Location{}, fmt.Errorf("%w: unknown location usage %q", ErrValidation, location.Usage)
	}
	return s.repo.CreateLocation(ctx, location)
}

// Picking type operations
func (s *service) ListPickingTypes(ctx context.Context, filters ListFilters) ([]PickingType, error) {
	return s.repo.ListPickingTypes(ctx, normalizeFilters(filters))
}

func (s *service) GetPickingType(ctx context.Context, id int64) (PickingType, error) {
	if id <= 0 {
		return PickingType{}, fmt.Errorf("%w: invalid picking type ID", ErrValidation)
	}
	return s.repo.GetPickingType(ctx, id)
}

func (s *service) CreatePickingType(ctx context.Context, pt PickingType) (PickingType, error) {
	if strings.TrimSpace(pt.Code) == "" || strings.TrimSpace(pt.Name) == "" {
		return PickingType{}, fmt.Errorf("%w: picking type code and name are required", ErrValidation)
	}
	if pt.DefaultDestLocationID != nil {
		if _, err := s.repo.GetLocation(ctx, *pt.DefaultDestLocationID); err != nil {
			return PickingType{}, err
		}
	}
	return s.repo.CreatePickingType(ctx, pt)
}

func (s *service) validateVendor(ctx context.Context, vendor Vendor) error {
	if strings.TrimSpace(vendor.Code) == "" {
		return fmt.Errorf("%w: vendor code is required", ErrValidation)
	}
	if strings.TrimSpace(vendor.Name) == "" {
		return fmt.Errorf("%w: vendor name is required", ErrValidation)
	}
	if vendor.SupplierLocationID != nil {
		loc, err := s.repo.GetLocation(ctx, *vendor.SupplierLocationID)
		if err != nil {
			return err
		}
		if loc.Usage != LocationSupplier {
			return fmt.Errorf("%w: location %s is not a supplier location", ErrValidation, loc.Code)
		}
	}
	return nil
}

func (s *service) validateProduct(product Product) error {
	if strings.TrimSpace(product.SKU) == "" {
		return fmt.Errorf("%w: product SKU is required", ErrValidation)
	}
	if strings.TrimSpace(product.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	return nil
}

func normalizeFilters(filters ListFilters) ListFilters {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	filters.Search = strings.TrimSpace(filters.Search)
	return filters
}
