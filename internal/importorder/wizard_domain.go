package importorder

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
)

// RowStatus is the validation outcome of one wizard row.
type RowStatus string

const (
	RowPending RowStatus = "pending"
	RowSuccess RowStatus = "success"
	RowWarning RowStatus = "warning"
	RowFailed  RowStatus = "failed"
)

// Actionable reports whether confirm turns the row into an order line.
func (s RowStatus) Actionable() bool {
	return s == RowSuccess || s == RowWarning
}

// SessionState of the order-line wizard.
type SessionState string

const (
	SessionDraft     SessionState = "draft"
	SessionValidated SessionState = "validated"
	SessionDone      SessionState = "done"
)

// Row is one uploaded row. OrderPrice is the price of the first matched line.
type Row struct {
	Index      int             `json:"index"`
	Reference  string          `json:"reference"`
	Quantity   decimal.Decimal `json:"quantity"`
	FilePrice  decimal.Decimal `json:"file_price"`
	OrderPrice decimal.Decimal `json:"order_price"`
	MatchIDs   []int64         `json:"match_ids,omitempty"`
	Status     RowStatus       `json:"status"`
	Message    string          `json:"message,omitempty"`
	ParseError string          `json:"parse_error,omitempty"`
}

// Session is the wizard document kept in Redis.
type Session struct {
	ID                  string       `json:"id"`
	ActorID             int64        `json:"actor_id"`
	ImportOrderID       int64        `json:"import_order_id,omitempty"`
	VendorID            int64        `json:"vendor_id,omitempty"`
	Currency            string       `json:"currency,omitempty"`
	FileName            string       `json:"file_name"`
	State               SessionState `json:"state"`
	Rows                []Row        `json:"rows"`
	PurchaseOrderID     int64        `json:"purchase_order_id,omitempty"`
	PurchaseOrderNumber string       `json:"purchase_order_number,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Counts tallies rows per status.
func (s Session) Counts() map[RowStatus]int {
	counts := make(map[RowStatus]int, 4)
	for _, r := range s.Rows {
		counts[r.Status]++
	}
	return counts
}

// PreviewInput carries the upload and the optional header choices.
type PreviewInput struct {
	FileName      string
	ImportOrderID int64
	VendorID      int64
	Currency      string
}

// ConfirmInput overrides the vendor and currency chosen at preview.
type ConfirmInput struct {
	VendorID int64
	Currency string
}

var (
	// ErrSessionNotFound indicates an expired or unknown session.
	ErrSessionNotFound = fmt.Errorf("importorder: wizard session not found: %w", httpx.ErrNotFound)
	// ErrSessionClosed is returned when a confirmed session is changed.
	ErrSessionClosed = fmt.Errorf("importorder: wizard session already confirmed: %w", httpx.ErrConflict)
	// ErrVendorRequired is returned by confirm without a vendor.
	ErrVendorRequired = fmt.Errorf("importorder: select a vendor before confirming: %w", httpx.ErrValidation)
	// ErrNoActionableRows is returned when confirm finds no success or warning rows.
	ErrNoActionableRows = fmt.Errorf("importorder: no rows to import: %w", httpx.ErrUnprocessable)
	// ErrEmptyFile is returned when no file was uploaded.
	ErrEmptyFile = fmt.Errorf("importorder: file required: %w", httpx.ErrValidation)
)
