package rbac

import (
	"context"
	"time"
)

// Permissions guarding the import receiving endpoints.
const (
	PermShipmentView    = "shipment.view"
	PermShipmentImport  = "shipment.import"
	PermShipmentEdit    = "shipment.edit"
	PermShipmentDelete  = "shipment.delete"
	PermInventoryMove   = "inventory.move"
	PermInventoryView   = "inventory.view"
	PermProcurementEdit = "procurement.edit"
	PermProcurementView = "procurement.view"
	PermImportOrderEdit = "importorder.edit"
	PermImportOrderView = "importorder.view"
	PermMasterdataEdit  = "masterdata.edit"
	PermMasterdataView  = "masterdata.view"
)

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// PermissionSource resolves the permissions granted to a user.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}
