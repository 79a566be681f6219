package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// repo implements Repository interface
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Vendor operations
func (r *repo) ListVendors(ctx context.Context, filters ListFilters) ([]Vendor, error) {
	query := `SELECT id, code, name, is_import_vendor, supplier_location_id, is_active, created_at
	          FROM vendors
	          WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')
	          ORDER BY name LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, filters.Search, filters.Limit, filters.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Code, &v.Name, &v.IsImportVendor, &v.SupplierLocationID, &v.IsActive, &v.CreatedAt); err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func (r *repo) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	query := `SELECT id, code, name, is_import_vendor, supplier_location_id, is_active, created_at FROM vendors WHERE id = $1`
	var v Vendor
	err := r.db.QueryRow(ctx, query, id).Scan(&v.ID, &v.Code, &v.Name, &v.IsImportVendor, &v.SupplierLocationID, &v.IsActive, &v.CreatedAt)
	return v, notFound(err)
}

func (r *repo) CreateVendor(ctx context.Context, vendor Vendor) (Vendor, error) {
	query := `INSERT INTO vendors (code, name, is_import_vendor, supplier_location_id, is_active)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query, vendor.Code, vendor.Name, vendor.IsImportVendor, vendor.SupplierLocationID, vendor.IsActive).
		Scan(&vendor.ID, &vendor.CreatedAt)
	return vendor, err
}

// Product operations
func (r *repo) ListProducts(ctx context.Context, filters ListFilters) ([]Product, error) {
	query := `SELECT id, sku, name, manufacturer_code, is_active, created_at
	          FROM products
	          WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%' OR manufacturer_code ILIKE '%' || $1 || '%')
	          ORDER BY name LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, filters.Search, filters.Limit, filters.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.ManufacturerCode, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	query := `SELECT id, sku, name, manufacturer_code, is_active, created_at FROM products WHERE id = $1`
	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.SKU, &p.Name, &p.ManufacturerCode, &p.IsActive, &p.CreatedAt)
	return p, notFound(err)
}

func (r *repo) CreateProduct(ctx context.Context, product Product) (Product, error) {
	query := `INSERT INTO products (sku, name, manufacturer_code, is_active)
	          VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query, product.SKU, product.Name, product.ManufacturerCode, product.IsActive).
		Scan(&product.ID, &product.CreatedAt)
	return product, err
}

// Location operations
func (r *repo) ListLocations(ctx context.Context, filters ListFilters) ([]Location, error) {
	query := `SELECT id, code, name, usage FROM locations
	          WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')
	          ORDER BY code LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, filters.Search, filters.Limit, filters.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.Usage); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (r *repo) GetLocation(ctx context.Context, id int64) (Location, error) {
	var l Location
	err := r.db.QueryRow(ctx, `SELECT id, code, name, usage FROM locations WHERE id = $1`, id).
		Scan(&l.ID, &l.Code, &l.Name, &l.Usage)
	return l, notFound(err)
}

func (r *repo) CreateLocation(ctx context.Context, location Location) (Location, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO locations (code, name, usage) VALUES ($1, $2, $3) RETURNING id`,
		location.Code, location.Name, location.Usage).Scan(&location.ID)
	return location, err
}

// Picking type operations
func (r *repo) ListPickingTypes(ctx context.Context, filters ListFilters) ([]PickingType, error) {
	query := `SELECT id, code, name, default_dest_location_id, use_import_shipment FROM picking_types
	          WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')
	          ORDER BY code LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, filters.Search, filters.Limit, filters.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []PickingType
	for rows.Next() {
		var pt PickingType
		if err := rows.Scan(&pt.ID, &pt.Code, &pt.Name, &pt.DefaultDestLocationID, &pt.UseImportShipment); err != nil {
			return nil, err
		}
		types = append(types, pt)
	}
	return types, rows.Err()
}

func (r *repo) GetPickingType(ctx context.Context, id int64) (PickingType, error) {
	var pt PickingType
	err := r.db.QueryRow(ctx, `SELECT id, code, name, default_dest_location_id, use_import_shipment FROM picking_types WHERE id = $1`, id).
		Scan(&pt.ID, &pt.Code, &pt.Name, &pt.DefaultDestLocationID, &pt.UseImportShipment)
	return pt, notFound(err)
}

func (r *repo) CreatePickingType(ctx context.Context, pt PickingType) (PickingType, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO picking_types (code, name, default_dest_location_id, use_import_shipment)
	          VALUES ($1, $2, $3, $4) RETURNING id`, pt.Code, pt.Name, pt.DefaultDestLocationID, pt.UseImportShipment).Scan(&pt.ID)
	return pt, err
}
