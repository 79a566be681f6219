package shipment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
)

// LineState is derived from the ledger and the done flag, never stored.
type LineState string

const (
	StateWaiting           LineState = "waiting"
	StatePartiallyImported LineState = "partially_imported"
	StateImported          LineState = "imported"
	StateDone              LineState = "done"
)

// Line is one purchase-order line awaiting import consolidation.
type Line struct {
	ID                  int64           `json:"id"`
	Reference           string          `json:"reference"`
	VendorID            int64           `json:"vendor_id"`
	PurchaseOrderID     int64           `json:"purchase_order_id"`
	PurchaseOrderNumber string          `json:"purchase_order_number"`
	PurchaseLineID      int64           `json:"purchase_line_id"`
	ProductID           int64           `json:"product_id"`
	ManufacturerCode    string          `json:"manufacturer_code"`
	PickingTypeID       int64           `json:"picking_type_id"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	OrderedQty          decimal.Decimal `json:"ordered_qty"`
	ImportedQty         decimal.Decimal `json:"imported_qty"`
	ReceivedQty         decimal.Decimal `json:"received_qty"`
	ExpectedDate        time.Time       `json:"expected_date"`
	LatestReceiptID     *int64          `json:"latest_receipt_id,omitempty"`
	Done                bool            `json:"done"`
	Active              bool            `json:"active"`
	CreatedAt           time.Time       `json:"created_at"`
}

// OpenQty is the quantity still expected, never negative.
func (l Line) OpenQty() decimal.Decimal {
	open := l.OrderedQty.Sub(l.ImportedQty)
	if open.IsNegative() {
		return decimal.Zero
	}
	return open
}

// State derives the lifecycle state.
func (l Line) State() LineState {
	switch {
	case l.Done:
		return StateDone
	case !l.ImportedQty.IsPositive():
		return StateWaiting
	case l.OrderedQty.IsPositive() && l.ImportedQty.GreaterThanOrEqual(l.OrderedQty):
		return StateImported
	default:
		return StatePartiallyImported
	}
}

// EventKind classifies ledger events.
type EventKind string

const (
	EventAllocate EventKind = "allocate"
	EventReverse  EventKind = "reverse"
	EventAdjust   EventKind = "adjust"
)

// LedgerEvent is one signed change of a line's imported quantity.
type LedgerEvent struct {
	ID         int64           `json:"id"`
	LineID     int64           `json:"line_id"`
	Kind       EventKind       `json:"kind"`
	Qty        decimal.Decimal `json:"qty"`
	MovementID *int64          `json:"movement_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewLineInput describes a line created from a confirmed purchase order.
type NewLineInput struct {
	VendorID            int64
	PurchaseOrderID     int64
	PurchaseOrderNumber string
	PurchaseLineID      int64
	ProductID           int64
	ManufacturerCode    string
	PickingTypeID       int64
	UnitPrice           decimal.Decimal
	OrderedQty          decimal.Decimal
	ExpectedDate        time.Time
}

// ListFilter narrows line listings.
type ListFilter struct {
	Reference   string
	VendorID    int64
	ProductID   int64
	OpenOnly    bool
	IncludeDone bool
	Limit       int
	Offset      int
}

// GroupStatus reports the outcome of one receipt group.
type GroupStatus string

const (
	GroupCreated GroupStatus = "created"
	GroupSkipped GroupStatus = "skipped"
	GroupFailed  GroupStatus = "failed"
)

// Reasons reported for skipped groups.
const (
	ReasonMissingPickingType      = "missing picking type"
	ReasonMissingDestination      = "missing destination location"
	ReasonMissingSupplierLocation = "missing supplier location"
)

// GroupResult describes what happened to one (vendor, date) group.
type GroupResult struct {
	VendorID      int64       `json:"vendor_id"`
	Date          *time.Time  `json:"date,omitempty"`
	Status        GroupStatus `json:"status"`
	Reason        string      `json:"reason,omitempty"`
	ReceiptID     int64       `json:"receipt_id,omitempty"`
	ReceiptNumber string      `json:"receipt_number,omitempty"`
	LineIDs       []int64     `json:"line_ids"`
}

// Batch is the set of shares that go into receipts dated the same day.
type Batch struct {
	Date   *time.Time
	Shares map[int64]decimal.Decimal
}

// ImportRow is one actionable spreadsheet row handed to ApplyImport.
type ImportRow struct {
	Index     int
	Reference string
	Quantity  decimal.Decimal
	Date      *time.Time
}

// RowAllocation records how one row was distributed.
type RowAllocation struct {
	Index     int             `json:"index"`
	Reference string          `json:"reference"`
	Shares    []Share         `json:"shares"`
	Surplus   decimal.Decimal `json:"surplus"`
	Unmatched bool            `json:"unmatched,omitempty"`
}

// ImportOutcome is the result of applying a confirmed import.
type ImportOutcome struct {
	Rows       []RowAllocation `json:"rows"`
	Groups     []GroupResult   `json:"groups"`
	ReceiptIDs []int64         `json:"receipt_ids"`
}

var (
	// ErrNotFound indicates the shipment line is missing.
	ErrNotFound = fmt.Errorf("shipment: line not found: %w", httpx.ErrNotFound)
	// ErrValidation indicates invalid line input.
	ErrValidation = fmt.Errorf("shipment: invalid input: %w", httpx.ErrValidation)
	// ErrConfirmationRequired guards line deletion.
	ErrConfirmationRequired = fmt.Errorf("shipment: deletion requires explicit confirmation: %w", httpx.ErrConflict)
	// ErrInvalidState occurs when a done line is modified.
	ErrInvalidState = fmt.Errorf("shipment: line is done: %w", httpx.ErrConflict)
)
