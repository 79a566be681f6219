package shipmentimport

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-import/internal/shipment"
)

// RowStatus is the validation outcome of one preview row.
type RowStatus string

const (
	RowPending RowStatus = "pending"
	RowSuccess RowStatus = "success"
	RowWarning RowStatus = "warning"
	RowFailed  RowStatus = "failed"
)

// Actionable reports whether confirm acts on the row.
func (s RowStatus) Actionable() bool {
	return s == RowSuccess || s == RowWarning
}

// State of a wizard session.
type State string

const (
	StateDraft     State = "draft"
	StateValidated State = "validated"
	StateDone      State = "done"
)

// Row is one preview row held in the session.
type Row struct {
	Index      int              `json:"index"`
	Reference  string           `json:"reference"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
	Date       *time.Time       `json:"date,omitempty"`
	MatchIDs   []int64          `json:"match_ids,omitempty"`
	Status     RowStatus        `json:"status"`
	Message    string           `json:"message,omitempty"`
	ParseError string           `json:"parse_error,omitempty"`
}

// Session is the ephemeral wizard document kept in Redis.
type Session struct {
	ID        string         `json:"id"`
	ActorID   int64          `json:"actor_id"`
	FileName  string         `json:"file_name"`
	State     State          `json:"state"`
	Rows      []Row          `json:"rows"`
	Result    *ConfirmResult `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Counts tallies rows per status.
func (s Session) Counts() map[RowStatus]int {
	counts := make(map[RowStatus]int, 4)
	for _, r := range s.Rows {
		counts[r.Status]++
	}
	return counts
}

// ConfirmResult is returned by Confirm and kept on the session.
type ConfirmResult struct {
	SessionID  string                   `json:"session_id"`
	Rows       []shipment.RowAllocation `json:"rows"`
	Groups     []shipment.GroupResult   `json:"groups"`
	ReceiptIDs []int64                  `json:"receipt_ids"`
}

var (
	// ErrSessionNotFound indicates an expired or unknown session.
	ErrSessionNotFound = fmt.Errorf("shipmentimport: session not found: %w", httpx.ErrNotFound)
	// ErrSessionClosed is returned when a confirmed session is changed.
	ErrSessionClosed = fmt.Errorf("shipmentimport: session already confirmed: %w", httpx.ErrConflict)
	// ErrNoActionableRows is returned when confirm finds no success or warning rows.
	ErrNoActionableRows = fmt.Errorf("shipmentimport: no rows to import: %w", httpx.ErrUnprocessable)
	// ErrEmptyFile is returned when no file was uploaded.
	ErrEmptyFile = fmt.Errorf("shipmentimport: file required: %w", httpx.ErrValidation)
)
