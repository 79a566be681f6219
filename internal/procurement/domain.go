package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusConfirmed POStatus = "CONFIRMED"
	POStatusCancelled POStatus = "CANCELLED"
)

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID            int64     `json:"id"`
	Number        string    `json:"number"`
	VendorID      int64     `json:"vendor_id"`
	PickingTypeID int64     `json:"picking_type_id"`
	Status        POStatus  `json:"status"`
	Currency      string    `json:"currency"`
	ExpectedDate  time.Time `json:"expected_date"`
	Origin        string    `json:"origin,omitempty"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// POLine represents PO lines.
type POLine struct {
	ID                int64           `json:"id"`
	POID              int64           `json:"po_id"`
	ProductID         int64           `json:"product_id"`
	Qty               decimal.Decimal `json:"qty"`
	Price             decimal.Decimal `json:"price"`
	ImportOrderLineID *int64          `json:"import_order_line_id,omitempty"`
	Note              string          `json:"note,omitempty"`
}

// Subtotal is qty times price.
func (l POLine) Subtotal() decimal.Decimal {
	return l.Qty.Mul(l.Price)
}

// Route tells how a confirmed order is received.
type Route string

const (
	// RouteReceipt creates a standard receipt at confirmation.
	RouteReceipt Route = "receipt"
	// RouteImportShipment creates shipment lines to be consolidated later.
	RouteImportShipment Route = "import_shipment"
)

// ConfirmOutcome describes what confirmation produced.
type ConfirmOutcome struct {
	Order           PurchaseOrder `json:"order"`
	Route           Route         `json:"route"`
	ReceiptID       int64         `json:"receipt_id,omitempty"`
	ShipmentLineIDs []int64       `json:"shipment_line_ids,omitempty"`
}

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = fmt.Errorf("procurement: invalid state transition: %w", httpx.ErrConflict)
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("procurement: not found: %w", httpx.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("procurement: invalid input: %w", httpx.ErrValidation)
	// ErrRoutingIncomplete is returned when the order cannot be received.
	ErrRoutingIncomplete = fmt.Errorf("procurement: receipt routing incomplete: %w", httpx.ErrUnprocessable)
)
