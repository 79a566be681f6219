package masterdata

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the master record does not exist.
	ErrNotFound = fmt.Errorf("masterdata: not found: %w", httpx.ErrNotFound)
	// ErrValidation indicates invalid master data input.
	ErrValidation = fmt.Errorf("masterdata: invalid input: %w", httpx.ErrValidation)
)

// LocationUsage classifies stock locations.
type LocationUsage string

const (
	LocationSupplier LocationUsage = "supplier"
	LocationInternal LocationUsage = "internal"
)

// ListFilters represents standard list filters
type ListFilters struct {
	Search string
	Limit  int
	Offset int
}

// Vendor represents a supplier partner.
type Vendor struct {
	ID                 int64     `json:"id"`
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	IsImportVendor     bool      `json:"is_import_vendor"`
	SupplierLocationID *int64    `json:"supplier_location_id"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
}

// Product represents a purchasable product.
type Product struct {
	ID               int64     `json:"id"`
	SKU              string    `json:"sku"`
	Name             string    `json:"name"`
	ManufacturerCode string    `json:"manufacturer_code"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
}

// Location is a stock location; supplier locations are receipt sources.
type Location struct {
	ID    int64         `json:"id"`
	Code  string        `json:"code"`
	Name  string        `json:"name"`
	Usage LocationUsage `json:"usage"`
}

// PickingType describes an incoming operation type and its routing defaults.
type PickingType struct {
	ID                    int64  `json:"id"`
	Code                  string `json:"code"`
	Name                  string `json:"name"`
	DefaultDestLocationID *int64 `json:"default_dest_location_id"`
	UseImportShipment     bool   `json:"use_import_shipment"`
}

// Repository interface for master data persistence.
type Repository interface {
	ListVendors(ctx context.Context, filters ListFilters) ([]Vendor, error)
	GetVendor(ctx context.Context, id int64) (Vendor, error)
	CreateVendor(ctx context.Context, vendor Vendor) (Vendor, error)

	ListProducts(ctx context.Context, filters ListFilters) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)

	ListLocations(ctx context.Context, filters ListFilters) ([]Location, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	CreateLocation(ctx context.Context, location Location) (Location, error)

	ListPickingTypes(ctx context.Context, filters ListFilters) ([]PickingType, error)
	GetPickingType(ctx context.Context, id int64) (PickingType, error)
	CreatePickingType(ctx context.Context, pt PickingType) (PickingType, error)
}

// Service interface for master data business logic.
type Service interface {
	ListVendors(ctx context.Context, filters ListFilters) ([]Vendor, error)
	GetVendor(ctx context.Context, id int64) (Vendor, error)
	CreateVendor(ctx context.Context, vendor Vendor) (Vendor, error)

	ListProducts(ctx context.Context, filters ListFilters) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)

	ListLocations(ctx context.Context, filters ListFilters) ([]Location, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	CreateLocation(ctx context.Context, location Location) (Location, error)

	ListPickingTypes(ctx context.Context, filters ListFilters) ([]PickingType, error)
	GetPickingType(ctx context.Context, id int64) (PickingType, error)
	CreatePickingType(ctx context.Context, pt PickingType) (PickingType, error)
}
