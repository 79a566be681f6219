package shipment

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/odyssey-import/internal/inventory"
)

// Reverser keeps the imported ledger in step with movement transitions.
type Reverser struct {
	service *Service
	logger  *slog.Logger
}

// NewReverser builds the movement observer for service.
func NewReverser(service *Service, logger *slog.Logger) *Reverser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reverser{service: service, logger: logger}
}

var _ inventory.MoveObserver = (*Reverser)(nil)

// OnMoveEvent reverses the imported quantity of cancelled or deleted moves and
// closes lines whose received quantity reached the ordered quantity.
func (r *Reverser) OnMoveEvent(ctx context.Context, event inventory.MoveEvent) error {
	move := event.Move
	if move.ShipmentLineID == nil {
		return nil
	}
	lineID := *move.ShipmentLineID
	switch event.Kind {
	case inventory.MoveCancelled, inventory.MoveDeleted:
		if move.State == inventory.StateCancelled {
			return nil
		}
		qty, err := r.service.Reverse(ctx, lineID, move.ID, move.Demand)
		if err != nil {
			return err
		}
		if qty.IsPositive() {
			r.logger.Info("shipment line reversed",
				slog.Int64("line_id", lineID),
				slog.Int64("move_id", move.ID),
				slog.String("qty", qty.String()))
		}
	case inventory.MoveDone:
		done, err := r.service.MarkDoneIfReceived(ctx, lineID)
		if err != nil {
			return err
		}
		if done {
			r.logger.Info("shipment line received", slog.Int64("line_id", lineID))
		}
	}
	return nil
}
