package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/inventory"
	"github.com/odyssey-erp/odyssey-import/internal/masterdata"
	"github.com/odyssey-erp/odyssey-import/internal/shared"
	"github.com/odyssey-erp/odyssey-import/internal/shipment"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error)
}

// InventoryPort exposes the receipt operations for standard orders.
type InventoryPort interface {
	CreateReceipt(ctx context.Context, input inventory.ReceiptInput) (inventory.Receipt, []inventory.Move, error)
	ConfirmReceipt(ctx context.Context, id int64) error
	CancelMove(ctx context.Context, id int64) (inventory.Move, error)
}

// MasterdataPort resolves vendors, products and picking types.
type MasterdataPort interface {
	GetVendor(ctx context.Context, id int64) (masterdata.Vendor, error)
	GetProduct(ctx context.Context, id int64) (masterdata.Product, error)
	GetPickingType(ctx context.Context, id int64) (masterdata.PickingType, error)
}

// ShipmentPort receives orders diverted to import consolidation.
type ShipmentPort interface {
	CreateLines(ctx context.Context, inputs []shipment.NewLineInput) ([]shipment.Line, error)
}

// IdempotencyPort guards double confirmation.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates procurement flows.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	masterdata  MasterdataPort
	shipments   ShipmentPort
	audit       AuditPort
	idempotency IdempotencyPort
	logger      *slog.Logger
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, inv InventoryPort, md MasterdataPort, shipments ShipmentPort, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, inventory: inv, masterdata: md, shipments: shipments, audit: audit, idempotency: idem, logger: logger}
}

// CreatePOInput defines data to create a purchase order.
type CreatePOInput struct {
	VendorID      int64
	PickingTypeID int64
	Currency      string
	ExpectedDate  time.Time
	Origin        string
	Note          string
	Lines         []POLineInput
}

// POLineInput describes one order line.
type POLineInput struct {
	ProductID         int64
	Qty               decimal.Decimal
	Price             decimal.Decimal
	ImportOrderLineID *int64
	Note              string
}

// CreatePurchaseOrder persists a draft order with its lines.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if input.VendorID == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: vendor required", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || !line.Qty.IsPositive() || line.Price.IsNegative() {
			return PurchaseOrder{}, ErrValidation
		}
	}
	po := PurchaseOrder{
		VendorID:      input.VendorID,
		PickingTypeID: input.PickingTypeID,
		Status:        POStatusDraft,
		Currency:      defaultString(input.Currency, "USD"),
		ExpectedDate:  defaultTime(input.ExpectedDate),
		Origin:        input.Origin,
		Note:          input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextPONumber(ctx)
		if err != nil {
			return err
		}
		po.Number = number
		poID, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = poID
		for _, line := range input.Lines {
			if err := tx.InsertPOLine(ctx, POLine{
				POID:              poID,
				ProductID:         line.ProductID,
				Qty:               line.Qty,
				Price:             line.Price,
				ImportOrderLineID: line.ImportOrderLineID,
				Note:              line.Note,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "PO_CREATE", po.ID, map[string]any{"number": po.Number, "origin": po.Origin})
	return po, nil
}

// GetPurchaseOrder returns an order with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	return s.repo.GetPO(ctx, id)
}

// ConfirmPurchaseOrder moves a draft order to CONFIRMED. Orders of import
// vendors, or whose picking type uses import shipments, produce one shipment
// line per order line instead of a receipt.
func (s *Service) ConfirmPurchaseOrder(ctx context.Context, id int64) (ConfirmOutcome, error) {
	po, lines, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return ConfirmOutcome{}, err
	}
	if po.Status != POStatusDraft {
		return ConfirmOutcome{}, ErrInvalidState
	}
	vendor, err := s.masterdata.GetVendor(ctx, po.VendorID)
	if err != nil {
		return ConfirmOutcome{}, err
	}
	var pickingType masterdata.PickingType
	if po.PickingTypeID > 0 {
		pickingType, err = s.masterdata.GetPickingType(ctx, po.PickingTypeID)
		if err != nil {
			return ConfirmOutcome{}, err
		}
	}
	route := RouteReceipt
	if vendor.IsImportVendor || pickingType.UseImportShipment {
		route = RouteImportShipment
	} else if vendor.SupplierLocationID == nil || pickingType.DefaultDestLocationID == nil {
		return ConfirmOutcome{}, ErrRoutingIncomplete
	}

	key := fmt.Sprintf("po-confirm:%d", id)
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "procurement"); err != nil {
			return ConfirmOutcome{}, err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOStatus(ctx, id, POStatusConfirmed)
	})
	if err != nil {
		s.releaseKey(ctx, key)
		return ConfirmOutcome{}, err
	}
	po.Status = POStatusConfirmed
	outcome := ConfirmOutcome{Order: po, Route: route}

	switch route {
	case RouteImportShipment:
		outcome.ShipmentLineIDs, err = s.divertToShipment(ctx, po, lines)
	default:
		outcome.ReceiptID, err = s.createReceipt(ctx, po, lines, vendor, pickingType)
	}
	if err != nil {
		s.revertConfirm(ctx, id, key)
		return ConfirmOutcome{}, err
	}
	s.recordAudit(ctx, "PO_CONFIRM", po.ID, map[string]any{"route": string(route)})
	return outcome, nil
}

// CancelPurchaseOrder moves a draft order to CANCELLED.
func (s *Service) CancelPurchaseOrder(ctx context.Context, id int64) error {
	po, _, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return err
	}
	if po.Status != POStatusDraft {
		return ErrInvalidState
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOStatus(ctx, id, POStatusCancelled)
	}); err != nil {
		return err
	}
	s.recordAudit(ctx, "PO_CANCEL", id, nil)
	return nil
}

func (s *Service) divertToShipment(ctx context.Context, po PurchaseOrder, lines []POLine) ([]int64, error) {
	inputs := make([]shipment.NewLineInput, 0, len(lines))
	for _, line := range lines {
		product, err := s.masterdata.GetProduct(ctx, line.ProductID)
		if err != nil && !errors.Is(err, masterdata.ErrNotFound) {
			return nil, err
		}
		inputs = append(inputs, shipment.NewLineInput{
			VendorID:            po.VendorID,
			PurchaseOrderID:     po.ID,
			PurchaseOrderNumber: po.Number,
			PurchaseLineID:      line.ID,
			ProductID:           line.ProductID,
			ManufacturerCode:    product.ManufacturerCode,
			PickingTypeID:       po.PickingTypeID,
			UnitPrice:           line.Price,
			OrderedQty:          line.Qty,
			ExpectedDate:        po.ExpectedDate,
		})
	}
	created, err := s.shipments.CreateLines(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("create shipment lines for %s: %w", po.Number, err)
	}
	ids := make([]int64, len(created))
	for i, l := range created {
		ids[i] = l.ID
	}
	s.logger.Info("purchase order diverted to import shipment",
		slog.Int64("po_id", po.ID),
		slog.Int("lines", len(ids)))
	return ids, nil
}

func (s *Service) createReceipt(ctx context.Context, po PurchaseOrder, lines []POLine, vendor masterdata.Vendor, pickingType masterdata.PickingType) (int64, error) {
	scheduled := po.ExpectedDate
	input := inventory.ReceiptInput{
		VendorID:         po.VendorID,
		PickingTypeID:    pickingType.ID,
		SourceLocationID: *vendor.SupplierLocationID,
		DestLocationID:   *pickingType.DefaultDestLocationID,
		Origin:           po.Number,
		ScheduledAt:      &scheduled,
	}
	for _, line := range lines {
		lineID := line.ID
		input.Moves = append(input.Moves, inventory.MoveInput{
			ProductID:      line.ProductID,
			PurchaseLineID: &lineID,
			Demand:         line.Qty,
			UnitCost:       line.Price,
		})
	}
	receipt, moves, err := s.inventory.CreateReceipt(ctx, input)
	if err != nil {
		return 0, err
	}
	if err := s.inventory.ConfirmReceipt(ctx, receipt.ID); err != nil {
		for _, m := range moves {
			if _, cancelErr := s.inventory.CancelMove(ctx, m.ID); cancelErr != nil {
				s.logger.Warn("cancel move of unconfirmed receipt",
					slog.Int64("receipt_id", receipt.ID),
					slog.Int64("move_id", m.ID),
					slog.Any("error", cancelErr))
			}
		}
		return 0, fmt.Errorf("confirm receipt for %s: %w", po.Number, err)
	}
	return receipt.ID, nil
}

// revertConfirm puts an order whose lines or receipt could not be created
// back to DRAFT and frees its confirm key so the confirm can be retried.
func (s *Service) revertConfirm(ctx context.Context, id int64, key string) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOStatus(ctx, id, POStatusDraft)
	})
	if err != nil {
		s.logger.Error("revert purchase order confirm", slog.Int64("po_id", id), slog.Any("error", err))
		return
	}
	s.releaseKey(ctx, key)
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if s.idempotency == nil {
		return
	}
	if err := s.idempotency.Delete(ctx, key); err != nil {
		s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "purchase_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC().Truncate(24 * time.Hour)
	}
	return value
}
