package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReceipt(ctx context.Context, id int64) (Receipt, []Move, error)
	GetMove(ctx context.Context, id int64) (Move, error)
	ReceiptsForShipmentLine(ctx context.Context, lineID int64) ([]Receipt, error)
	ReceivedByShipmentLine(ctx context.Context, lineIDs []int64) (map[int64]decimal.Decimal, error)
	GetBalance(ctx context.Context, locationID, productID int64) (Balance, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards one-shot operations.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	logger      *slog.Logger
	observers   []MoveObserver
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, logger: logger, now: time.Now}
}

// AddObserver registers an observer for movement transitions.
func (s *Service) AddObserver(o MoveObserver) {
	s.observers = append(s.observers, o)
}

// CreateReceipt persists a draft receipt and its movements.
func (s *Service) CreateReceipt(ctx context.Context, input ReceiptInput) (Receipt, []Move, error) {
	if len(input.Moves) == 0 {
		return Receipt{}, nil, fmt.Errorf("%w: receipt needs at least one move", ErrValidation)
	}
	if input.SourceLocationID == 0 || input.DestLocationID == 0 {
		return Receipt{}, nil, fmt.Errorf("%w: source and destination locations required", ErrValidation)
	}
	for _, m := range input.Moves {
		if m.ProductID == 0 {
			return Receipt{}, nil, fmt.Errorf("%w: move product required", ErrValidation)
		}
		if !m.Demand.IsPositive() {
			return Receipt{}, nil, ErrInvalidQuantity
		}
	}
	receipt := Receipt{
		VendorID:         input.VendorID,
		PickingTypeID:    input.PickingTypeID,
		SourceLocationID: input.SourceLocationID,
		DestLocationID:   input.DestLocationID,
		Origin:           input.Origin,
		ScheduledAt:      input.ScheduledAt,
		State:            StateDraft,
	}
	var moves []Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextReceiptNumber(ctx)
		if err != nil {
			return err
		}
		receipt.Number = number
		receipt.ID, err = tx.InsertReceipt(ctx, receipt)
		if err != nil {
			return err
		}
		for _, in := range input.Moves {
			move := Move{
				ReceiptID:        receipt.ID,
				ProductID:        in.ProductID,
				PurchaseLineID:   in.PurchaseLineID,
				ShipmentLineID:   in.ShipmentLineID,
				Demand:           in.Demand,
				UnitCost:         in.UnitCost,
				SourceLocationID: input.SourceLocationID,
				DestLocationID:   input.DestLocationID,
				State:            StateDraft,
			}
			move.ID, err = tx.InsertMove(ctx, move)
			if err != nil {
				return err
			}
			moves = append(moves, move)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, nil, err
	}
	s.recordAudit(ctx, "receipt:create", "receipt", receipt.ID, map[string]any{"number": receipt.Number, "origin": receipt.Origin, "moves": len(moves)})
	return receipt, moves, nil
}

// ConfirmReceipt moves a draft receipt and its moves to confirmed.
func (s *Service) ConfirmReceipt(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if receipt.State != StateDraft {
			return ErrInvalidState
		}
		if err := tx.UpdateReceiptState(ctx, id, StateConfirmed); err != nil {
			return err
		}
		moves, err := tx.ListMoves(ctx, id)
		if err != nil {
			return err
		}
		for _, m := range moves {
			if m.State != StateDraft {
				continue
			}
			if err := tx.UpdateMove(ctx, m.ID, StateConfirmed, m.QuantityDone); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetReceipt returns the receipt with its moves.
func (s *Service) GetReceipt(ctx context.Context, id int64) (Receipt, []Move, error) {
	return s.repo.GetReceipt(ctx, id)
}

// ReceiptsForShipmentLine lists receipts holding at least one move for the line.
func (s *Service) ReceiptsForShipmentLine(ctx context.Context, lineID int64) ([]Receipt, error) {
	return s.repo.ReceiptsForShipmentLine(ctx, lineID)
}

// ReceivedByShipmentLine sums done quantities per shipment line.
func (s *Service) ReceivedByShipmentLine(ctx context.Context, lineIDs []int64) (map[int64]decimal.Decimal, error) {
	if len(lineIDs) == 0 {
		return map[int64]decimal.Decimal{}, nil
	}
	return s.repo.ReceivedByShipmentLine(ctx, lineIDs)
}

// GetBalance returns the stock balance of a product in a location.
func (s *Service) GetBalance(ctx context.Context, locationID, productID int64) (Balance, error) {
	bal, err := s.repo.GetBalance(ctx, locationID, productID)
	if errors.Is(err, ErrBalanceNotFound) {
		return Balance{LocationID: locationID, ProductID: productID}, nil
	}
	return bal, err
}

// CancelMove cancels a movement. Cancelling an already cancelled move is a
// no-op and does not notify observers.
func (s *Service) CancelMove(ctx context.Context, id int64) (Move, error) {
	var (
		before   Move
		notified bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		move, err := tx.GetMoveForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = move
		switch move.State {
		case StateCancelled:
			return nil
		case StateDone:
			return ErrInvalidState
		}
		if err := tx.UpdateMove(ctx, id, StateCancelled, decimal.Zero); err != nil {
			return err
		}
		notified = true
		return s.settleReceipt(ctx, tx, move.ReceiptID)
	})
	if err != nil {
		return Move{}, err
	}
	if notified {
		s.recordAudit(ctx, "move:cancel", "stock_move", id, map[string]any{"demand": before.Demand.String()})
		s.notify(ctx, MoveEvent{Kind: MoveCancelled, Move: before, At: s.now()})
	}
	cancelled := before
	cancelled.State = StateCancelled
	return cancelled, nil
}

// DeleteMove removes a movement that is not done.
func (s *Service) DeleteMove(ctx context.Context, id int64) error {
	var before Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		move, err := tx.GetMoveForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if move.State == StateDone {
			return ErrInvalidState
		}
		before = move
		if err := tx.DeleteMove(ctx, id); err != nil {
			return err
		}
		return s.settleReceipt(ctx, tx, move.ReceiptID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "move:delete", "stock_move", id, map[string]any{"state": string(before.State)})
	if before.State != StateCancelled {
		s.notify(ctx, MoveEvent{Kind: MoveDeleted, Move: before, At: s.now()})
	}
	return nil
}

// MarkMoveDone validates a movement, posting qty (or the full demand when
// zero) into the destination stock balance at moving-average cost.
func (s *Service) MarkMoveDone(ctx context.Context, id int64, qty decimal.Decimal) (Move, error) {
	if qty.IsNegative() {
		return Move{}, ErrInvalidQuantity
	}
	key := "move-done:" + strconv.FormatInt(id, 10)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Move{}, err
		}
		insertedKey = true
	}
	var done Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		move, err := tx.GetMoveForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if move.State == StateDone || move.State == StateCancelled {
			return ErrInvalidState
		}
		if qty.IsZero() {
			qty = move.Demand
		}
		if err := tx.UpdateMove(ctx, id, StateDone, qty); err != nil {
			return err
		}
		if err := s.postInbound(ctx, tx, move.DestLocationID, move.ProductID, qty, move.UnitCost); err != nil {
			return err
		}
		move.State = StateDone
		move.QuantityDone = qty
		done = move
		return s.settleReceipt(ctx, tx, move.ReceiptID)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Move{}, err
	}
	s.recordAudit(ctx, "move:done", "stock_move", id, map[string]any{"qty": qty.String(), "location_id": done.DestLocationID})
	s.notify(ctx, MoveEvent{Kind: MoveDone, Move: done, At: s.now()})
	return done, nil
}

func (s *Service) postInbound(ctx context.Context, tx TxRepository, locationID, productID int64, qty, unitCost decimal.Decimal) error {
	balance, err := tx.GetBalanceForUpdate(ctx, locationID, productID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{LocationID: locationID, ProductID: productID}
	}
	newQty := balance.Qty.Add(qty)
	if newQty.IsPositive() {
		totalCost := balance.Qty.Mul(balance.AvgCost).Add(qty.Mul(unitCost))
		balance.AvgCost = totalCost.DivRound(newQty, 6)
	} else {
		balance.AvgCost = decimal.Zero
	}
	balance.Qty = newQty
	balance.UpdatedAt = s.now().UTC()
	return tx.UpsertBalance(ctx, balance)
}

// settleReceipt derives the receipt state from its remaining moves.
func (s *Service) settleReceipt(ctx context.Context, tx TxRepository, receiptID int64) error {
	receipt, err := tx.GetReceiptForUpdate(ctx, receiptID)
	if err != nil {
		return err
	}
	moves, err := tx.ListMoves(ctx, receiptID)
	if err != nil {
		return err
	}
	next := receipt.State
	var done, cancelled int
	for _, m := range moves {
		switch m.State {
		case StateDone:
			done++
		case StateCancelled:
			cancelled++
		}
	}
	switch {
	case len(moves) == 0 || cancelled == len(moves):
		next = StateCancelled
	case done > 0 && done+cancelled == len(moves):
		next = StateDone
	}
	if next == receipt.State {
		return nil
	}
	return tx.UpdateReceiptState(ctx, receiptID, next)
}

func (s *Service) notify(ctx context.Context, event MoveEvent) {
	for _, o := range s.observers {
		if err := o.OnMoveEvent(ctx, event); err != nil {
			s.logger.Error("move observer failed",
				slog.String("kind", string(event.Kind)),
				slog.Int64("move_id", event.Move.ID),
				slog.Any("error", err))
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("inventory audit", slog.String("action", action), slog.Any("error", err))
	}
}
