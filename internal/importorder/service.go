package importorder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/masterdata"
	"github.com/odyssey-erp/odyssey-import/internal/shared"
	"github.com/odyssey-erp/odyssey-import/internal/shipment"
)

// RepositoryPort describes the persistence used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	LinesByReference(ctx context.Context, ref string) ([]Line, error)
}

// ProductPort resolves manufacturer codes.
type ProductPort interface {
	GetProduct(ctx context.Context, id int64) (masterdata.Product, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages import orders.
type Service struct {
	repo     RepositoryPort
	products ProductPort
	audit    AuditPort
	logger   *slog.Logger
}

// NewService constructs Service.
func NewService(repo RepositoryPort, products ProductPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, products: products, audit: audit, logger: logger}
}

// Create stores a draft order. Each line's technical reference joins the
// order name and the product's manufacturer code.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if input.VendorID <= 0 {
		return Order{}, fmt.Errorf("%w: vendor required", ErrValidation)
	}
	for _, l := range input.Lines {
		if l.ProductID <= 0 || !l.Quantity.IsPositive() || l.UnitPrice.IsNegative() {
			return Order{}, fmt.Errorf("%w: line product, quantity or price", ErrValidation)
		}
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	order := Order{
		VendorID:      input.VendorID,
		Currency:      input.Currency,
		Date:          input.Date,
		ExpectedDate:  input.ExpectedDate,
		PickingTypeID: input.PickingTypeID,
		State:         StateDraft,
	}
	if order.Currency == "" {
		order.Currency = "USD"
	}
	if order.Date.IsZero() {
		order.Date = today
	}
	if order.ExpectedDate.IsZero() {
		order.ExpectedDate = today
	}

	codes := make(map[int64]string, len(input.Lines))
	for _, l := range input.Lines {
		if _, ok := codes[l.ProductID]; ok {
			continue
		}
		product, err := s.products.GetProduct(ctx, l.ProductID)
		if err != nil {
			return Order{}, err
		}
		codes[l.ProductID] = product.ManufacturerCode
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		name, err := tx.NextName(ctx)
		if err != nil {
			return err
		}
		order.Name = name
		order.ID, err = tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		for _, in := range input.Lines {
			line := Line{
				OrderID:            order.ID,
				ProductID:          in.ProductID,
				ManufacturerCode:   codes[in.ProductID],
				TechnicalReference: shipment.BuildReference(name, codes[in.ProductID]),
				Quantity:           in.Quantity,
				IncomingQty:        decimal.Zero,
				UnitPrice:          in.UnitPrice,
			}
			line.ID, err = tx.InsertLine(ctx, line)
			if err != nil {
				return err
			}
			order.Lines = append(order.Lines, line)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, "IMPORT_ORDER_CREATE", order.ID, map[string]any{"name": order.Name})
	return order, nil
}

// Get returns an order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns order headers.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListOrders(ctx, filter)
}

// Confirm marks a draft order done.
func (s *Service) Confirm(ctx context.Context, id int64) (Order, error) {
	return s.transition(ctx, id, StateDone, StateDraft)
}

// Cancel cancels a draft or done order.
func (s *Service) Cancel(ctx context.Context, id int64) (Order, error) {
	return s.transition(ctx, id, StateCancel, StateDraft, StateDone)
}

// SetDraft returns a done or cancelled order to draft.
func (s *Service) SetDraft(ctx context.Context, id int64) (Order, error) {
	return s.transition(ctx, id, StateDraft, StateDone, StateCancel)
}

// LinesByReference returns every line whose technical reference equals ref.
func (s *Service) LinesByReference(ctx context.Context, ref string) ([]Line, error) {
	return s.repo.LinesByReference(ctx, ref)
}

// IncomingUpdate sets Qty as the incoming quantity of every line in LineIDs.
type IncomingUpdate struct {
	LineIDs []int64
	Qty     decimal.Decimal
}

// SetIncoming records qty as the incoming quantity of each line.
func (s *Service) SetIncoming(ctx context.Context, lineIDs []int64, qty decimal.Decimal) error {
	return s.ApplyIncoming(ctx, []IncomingUpdate{{LineIDs: lineIDs, Qty: qty}})
}

// ApplyIncoming writes all updates in one transaction; either every line is
// updated or none is.
func (s *Service) ApplyIncoming(ctx context.Context, updates []IncomingUpdate) error {
	for _, u := range updates {
		if u.Qty.IsNegative() {
			return ErrValidation
		}
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, u := range updates {
			for _, id := range u.LineIDs {
				if err := tx.SetIncomingQty(ctx, id, u.Qty); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id int64, to State, from ...State) (Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetStateForUpdate(ctx, id)
		if err != nil {
			return err
		}
		allowed := false
		for _, st := range from {
			if current == st {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s to %s", ErrInvalidState, current, to)
		}
		return tx.UpdateState(ctx, id, to)
	})
	if err != nil {
		return Order{}, err
	}
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("import order state changed", slog.Int64("order_id", id), slog.String("state", string(to)))
	s.recordAudit(ctx, "IMPORT_ORDER_"+strings.ToUpper(string(to)), id, nil)
	return order, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "import_order",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit import order", slog.Int64("order_id", id), slog.Any("error", err))
	}
}
