package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
)

// State enumerates the receipt and movement lifecycle.
type State string

const (
	StateDraft     State = "draft"
	StateConfirmed State = "confirmed"
	StateDone      State = "done"
	StateCancelled State = "cancelled"
)

// Receipt groups incoming movements from one vendor (a picking).
type Receipt struct {
	ID               int64      `json:"id"`
	Number           string     `json:"number"`
	VendorID         int64      `json:"vendor_id"`
	PickingTypeID    int64      `json:"picking_type_id"`
	SourceLocationID int64      `json:"source_location_id"`
	DestLocationID   int64      `json:"dest_location_id"`
	Origin           string     `json:"origin"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
	State            State      `json:"state"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Move is a single product movement inside a receipt.
type Move struct {
	ID               int64           `json:"id"`
	ReceiptID        int64           `json:"receipt_id"`
	ProductID        int64           `json:"product_id"`
	PurchaseLineID   *int64          `json:"purchase_line_id,omitempty"`
	ShipmentLineID   *int64          `json:"shipment_line_id,omitempty"`
	Demand           decimal.Decimal `json:"demand"`
	QuantityDone     decimal.Decimal `json:"quantity_done"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	SourceLocationID int64           `json:"source_location_id"`
	DestLocationID   int64           `json:"dest_location_id"`
	State            State           `json:"state"`
}

// Balance summarises stock in a location per product.
type Balance struct {
	LocationID int64           `json:"location_id"`
	ProductID  int64           `json:"product_id"`
	Qty        decimal.Decimal `json:"qty"`
	AvgCost    decimal.Decimal `json:"avg_cost"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ReceiptInput describes a receipt to create.
type ReceiptInput struct {
	VendorID         int64
	PickingTypeID    int64
	SourceLocationID int64
	DestLocationID   int64
	Origin           string
	ScheduledAt      *time.Time
	Moves            []MoveInput
}

// MoveInput describes one movement of a new receipt.
type MoveInput struct {
	ProductID      int64
	PurchaseLineID *int64
	ShipmentLineID *int64
	Demand         decimal.Decimal
	UnitCost       decimal.Decimal
}

var (
	// ErrNotFound indicates the receipt or movement is missing.
	ErrNotFound = fmt.Errorf("inventory: not found: %w", httpx.ErrNotFound)
	// ErrInvalidState occurs when an action violates the movement workflow.
	ErrInvalidState = fmt.Errorf("inventory: invalid state transition: %w", httpx.ErrConflict)
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be positive: %w", httpx.ErrValidation)
	// ErrValidation indicates invalid receipt input.
	ErrValidation = fmt.Errorf("inventory: invalid input: %w", httpx.ErrValidation)
	// ErrBalanceNotFound indicates missing balance row.
	ErrBalanceNotFound = errors.New("inventory: balance not found")
)
