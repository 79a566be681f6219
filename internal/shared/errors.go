package shared

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
)

var (
	// ErrLocked indicates another request holds the lock for the resource.
	ErrLocked = fmt.Errorf("shared: resource locked: %w", httpx.ErrLocked)
	// ErrIdempotencyConflict indicates a duplicate key.
	ErrIdempotencyConflict = fmt.Errorf("idempotent request already processed: %w", httpx.ErrConflict)
)
