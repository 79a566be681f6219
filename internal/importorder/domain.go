package importorder

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
)

// State of an import order.
type State string

const (
	StateDraft  State = "draft"
	StateDone   State = "done"
	StateCancel State = "cancel"
)

// Order is an import order header with its lines.
type Order struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	VendorID      int64     `json:"vendor_id"`
	Currency      string    `json:"currency"`
	Date          time.Time `json:"date"`
	ExpectedDate  time.Time `json:"expected_date"`
	PickingTypeID int64     `json:"picking_type_id"`
	State         State     `json:"state"`
	Lines         []Line    `json:"lines"`
	CreatedAt     time.Time `json:"created_at"`
}

// AmountTotal sums the line subtotals.
func (o Order) AmountTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Line is one product of an import order.
type Line struct {
	ID                 int64           `json:"id"`
	OrderID            int64           `json:"order_id"`
	ProductID          int64           `json:"product_id"`
	ManufacturerCode   string          `json:"manufacturer_code"`
	TechnicalReference string          `json:"technical_reference"`
	Quantity           decimal.Decimal `json:"quantity"`
	IncomingQty        decimal.Decimal `json:"incoming_qty"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
}

// Subtotal is quantity times unit price.
func (l Line) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// CreateInput describes a new import order.
type CreateInput struct {
	VendorID      int64
	Currency      string
	Date          time.Time
	ExpectedDate  time.Time
	PickingTypeID int64
	Lines         []LineInput
}

// LineInput describes a new import order line.
type LineInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// ListFilter narrows order listings.
type ListFilter struct {
	VendorID int64
	State    State
	Limit    int
	Offset   int
}

var (
	// ErrNotFound indicates the order or line is missing.
	ErrNotFound = fmt.Errorf("importorder: not found: %w", httpx.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("importorder: invalid input: %w", httpx.ErrValidation)
	// ErrInvalidState occurs when an action violates the order workflow.
	ErrInvalidState = fmt.Errorf("importorder: invalid state transition: %w", httpx.ErrConflict)
)
