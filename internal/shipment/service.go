package shipment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/inventory"
	"github.com/odyssey-erp/odyssey-import/internal/masterdata"
	"github.com/odyssey-erp/odyssey-import/internal/shared"
)

const listPageSize = 500

// RepositoryPort describes repository operations used by Service. WithTx may
// run fn more than once when the transaction is retried.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLine(ctx context.Context, id int64) (Line, error)
	LinesByIDs(ctx context.Context, ids []int64) ([]Line, error)
	ListLines(ctx context.Context, filter ListFilter) ([]Line, error)
	Ledger(ctx context.Context, lineID int64) ([]LedgerEvent, error)
}

// InventoryPort exposes the receipt operations the synthesizer needs.
type InventoryPort interface {
	CreateReceipt(ctx context.Context, input inventory.ReceiptInput) (inventory.Receipt, []inventory.Move, error)
	ConfirmReceipt(ctx context.Context, id int64) error
	ReceivedByShipmentLine(ctx context.Context, lineIDs []int64) (map[int64]decimal.Decimal, error)
	ReceiptsForShipmentLine(ctx context.Context, lineID int64) ([]inventory.Receipt, error)
}

// RoutingPort resolves receipt routing defaults.
type RoutingPort interface {
	GetVendor(ctx context.Context, id int64) (masterdata.Vendor, error)
	GetPickingType(ctx context.Context, id int64) (masterdata.PickingType, error)
}

// CachePort is the versioned cache holding planned supply.
type CachePort interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// MetricsPort records reconciliation outcomes.
type MetricsPort interface {
	ReceiptGroup(status string)
	Surplus()
	Reversal()
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates shipment line flows.
type Service struct {
	repo      RepositoryPort
	inventory InventoryPort
	routing   RoutingPort
	cache     CachePort
	metrics   MetricsPort
	audit     AuditPort
	logger    *slog.Logger
	synth     *Synthesizer
}

// ServiceDeps groups the collaborators of Service. Cache, Metrics and Audit
// are optional.
type ServiceDeps struct {
	Repo      RepositoryPort
	Inventory InventoryPort
	Routing   RoutingPort
	Cache     CachePort
	Metrics   MetricsPort
	Audit     AuditPort
	Logger    *slog.Logger
}

// NewService constructs the shipment service.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      deps.Repo,
		inventory: deps.Inventory,
		routing:   deps.Routing,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		audit:     deps.Audit,
		logger:    logger,
		synth:     NewSynthesizer(deps.Inventory, deps.Routing, deps.Repo, deps.Metrics, logger),
	}
}

// CreateLines persists one line per confirmed purchase-order line.
func (s *Service) CreateLines(ctx context.Context, inputs []NewLineInput) ([]Line, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	created := make([]Line, 0, len(inputs))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created = created[:0]
		for _, in := range inputs {
			if in.ProductID == 0 || in.VendorID == 0 {
				return fmt.Errorf("%w: vendor and product required", ErrValidation)
			}
			if in.OrderedQty.IsNegative() {
				return fmt.Errorf("%w: ordered quantity must not be negative", ErrValidation)
			}
			line := Line{
				Reference:           BuildReference(in.PurchaseOrderNumber, in.ManufacturerCode),
				VendorID:            in.VendorID,
				PurchaseOrderID:     in.PurchaseOrderID,
				PurchaseOrderNumber: in.PurchaseOrderNumber,
				PurchaseLineID:      in.PurchaseLineID,
				ProductID:           in.ProductID,
				ManufacturerCode:    in.ManufacturerCode,
				PickingTypeID:       in.PickingTypeID,
				UnitPrice:           in.UnitPrice,
				OrderedQty:          in.OrderedQty,
				ImportedQty:         decimal.Zero,
				ExpectedDate:        in.ExpectedDate,
				Active:              true,
			}
			id, err := tx.InsertLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = id
			created = append(created, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return created, nil
}

// Get returns a line with its received quantity.
func (s *Service) Get(ctx context.Context, id int64) (Line, error) {
	line, err := s.repo.GetLine(ctx, id)
	if err != nil {
		return Line{}, err
	}
	lines, err := s.withReceived(ctx, []Line{line})
	if err != nil {
		return Line{}, err
	}
	return lines[0], nil
}

// List returns lines matching filter with their received quantities.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Line, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	lines, err := s.repo.ListLines(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.withReceived(ctx, lines)
}

// Ledger returns the imported-quantity events of a line.
func (s *Service) Ledger(ctx context.Context, lineID int64) ([]LedgerEvent, error) {
	if _, err := s.repo.GetLine(ctx, lineID); err != nil {
		return nil, err
	}
	return s.repo.Ledger(ctx, lineID)
}

func (s *Service) withReceived(ctx context.Context, lines []Line) ([]Line, error) {
	if len(lines) == 0 || s.inventory == nil {
		return lines, nil
	}
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ID
	}
	received, err := s.inventory.ReceivedByShipmentLine(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range lines {
		lines[i].ReceivedQty = received[lines[i].ID]
	}
	return lines, nil
}

// OpenLinesByReference returns every active, not done line sharing ref.
func (s *Service) OpenLinesByReference(ctx context.Context, ref string) ([]Line, error) {
	ref = NormalizeReference(ref)
	if ref == "" {
		return nil, nil
	}
	return s.repo.ListLines(ctx, ListFilter{Reference: ref})
}

// ApplyImport allocates every row to the open lines matching its reference
// and synthesizes receipts per row date. Allocation is committed in one
// transaction holding row locks on the matched lines; receipt synthesis runs
// afterwards, one receipt per group.
func (s *Service) ApplyImport(ctx context.Context, sessionID string, rows []ImportRow) (ImportOutcome, error) {
	var (
		outcome ImportOutcome
		batches []*Batch
		byDate  map[string]*Batch
		touched map[int64]Line
	)
	batchFor := func(date *time.Time) *Batch {
		key := ""
		if date != nil {
			key = date.Format(time.DateOnly)
		}
		b, ok := byDate[key]
		if !ok {
			b = &Batch{Date: date, Shares: map[int64]decimal.Decimal{}}
			byDate[key] = b
			batches = append(batches, b)
		}
		return b
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		outcome, batches = ImportOutcome{}, nil
		byDate, touched = map[string]*Batch{}, map[int64]Line{}
		for _, row := range rows {
			ref := NormalizeReference(row.Reference)
			ra := RowAllocation{Index: row.Index, Reference: ref, Surplus: decimal.Zero}
			if ref == "" || !row.Quantity.IsPositive() {
				ra.Unmatched = ref == ""
				outcome.Rows = append(outcome.Rows, ra)
				continue
			}
			lines, err := tx.OpenLinesByReference(ctx, ref)
			if err != nil {
				return fmt.Errorf("lock lines %s: %w", ref, err)
			}
			if len(lines) == 0 {
				ra.Unmatched = true
				outcome.Rows = append(outcome.Rows, ra)
				continue
			}
			alloc := Allocate(row.Quantity, lines)
			for _, share := range alloc.Shares {
				if _, err := tx.AppendEvent(ctx, LedgerEvent{
					LineID:    share.LineID,
					Kind:      EventAllocate,
					Qty:       share.Qty,
					SessionID: sessionID,
				}); err != nil {
					return err
				}
				b := batchFor(row.Date)
				b.Shares[share.LineID] = b.Shares[share.LineID].Add(share.Qty)
			}
			for _, l := range lines {
				touched[l.ID] = l
			}
			ra.Shares = alloc.Shares
			ra.Surplus = alloc.Surplus
			outcome.Rows = append(outcome.Rows, ra)
		}
		return nil
	})
	if err != nil {
		return ImportOutcome{}, err
	}
	s.invalidate(ctx)
	if s.metrics != nil {
		for _, ra := range outcome.Rows {
			if ra.Surplus.IsPositive() {
				s.metrics.Surplus()
			}
		}
	}

	lines := make([]Line, 0, len(touched))
	for _, l := range touched {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	for _, b := range batches {
		results := s.synth.Synthesize(ctx, *b, lines)
		for _, res := range results {
			if res.Status == GroupCreated {
				outcome.ReceiptIDs = append(outcome.ReceiptIDs, res.ReceiptID)
			}
		}
		outcome.Groups = append(outcome.Groups, results...)
		s.logger.Info("import batch synthesized",
			slog.String("session_id", sessionID),
			slog.String("qty", batchTotal(*b).String()),
			slog.Int("groups", len(results)))
	}
	s.recordAudit(ctx, "shipment:import", "import_session", sessionID, map[string]any{
		"rows":     len(rows),
		"receipts": outcome.ReceiptIDs,
	})
	return outcome, nil
}

// Reverse appends a reversal of -min(demand, imported) for the movement.
// A second reversal for the same movement is ignored.
func (s *Service) Reverse(ctx context.Context, lineID, movementID int64, demand decimal.Decimal) (decimal.Decimal, error) {
	reversed := decimal.Zero
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reversed = decimal.Zero
		line, err := tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		qty := decimal.Min(demand, line.ImportedQty)
		if !qty.IsPositive() {
			return nil
		}
		inserted, err := tx.AppendEvent(ctx, LedgerEvent{
			LineID:     lineID,
			Kind:       EventReverse,
			Qty:        qty.Neg(),
			MovementID: &movementID,
		})
		if err != nil {
			return err
		}
		if inserted {
			reversed = qty
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	if reversed.IsPositive() {
		if s.metrics != nil {
			s.metrics.Reversal()
		}
		s.invalidate(ctx)
	}
	return reversed, nil
}

// SetImportedQty records a manual edit of the imported quantity as an
// adjustment event.
func (s *Service) SetImportedQty(ctx context.Context, lineID int64, qty decimal.Decimal) (Line, error) {
	if qty.IsNegative() {
		return Line{}, fmt.Errorf("%w: imported quantity must not be negative", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		if line.Done {
			return ErrInvalidState
		}
		delta := qty.Sub(line.ImportedQty)
		if delta.IsZero() {
			return nil
		}
		_, err = tx.AppendEvent(ctx, LedgerEvent{LineID: lineID, Kind: EventAdjust, Qty: delta})
		return err
	})
	if err != nil {
		return Line{}, err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, "shipment:adjust", "shipment_line", strconv.FormatInt(lineID, 10), map[string]any{"imported_qty": qty.String()})
	return s.Get(ctx, lineID)
}

// CreateReceipt builds a consolidated receipt for the selected lines. Each
// line gets qty when given, otherwise its imported minus received quantity;
// non-positive quantities are skipped.
func (s *Service) CreateReceipt(ctx context.Context, lineIDs []int64, qty *decimal.Decimal, date *time.Time) ([]GroupResult, error) {
	if len(lineIDs) == 0 {
		return nil, fmt.Errorf("%w: select at least one line", ErrValidation)
	}
	lines, err := s.repo.LinesByIDs(ctx, lineIDs)
	if err != nil {
		return nil, err
	}
	if len(lines) != len(uniqueIDs(lineIDs)) {
		return nil, ErrNotFound
	}
	lines, err = s.withReceived(ctx, lines)
	if err != nil {
		return nil, err
	}
	batch := Batch{Date: date, Shares: map[int64]decimal.Decimal{}}
	for _, line := range lines {
		q := line.ImportedQty.Sub(line.ReceivedQty)
		if qty != nil {
			q = *qty
		}
		if q.IsPositive() {
			batch.Shares[line.ID] = q
		}
	}
	if len(batch.Shares) == 0 {
		return []GroupResult{}, nil
	}
	results := s.synth.Synthesize(ctx, batch, lines)
	s.recordAudit(ctx, "shipment:receipt", "shipment_line", joinIDs(lineIDs), map[string]any{"groups": len(results)})
	return results, nil
}

// RelatedReceipts lists receipts holding at least one move of the line.
func (s *Service) RelatedReceipts(ctx context.Context, lineID int64) ([]inventory.Receipt, error) {
	if _, err := s.repo.GetLine(ctx, lineID); err != nil {
		return nil, err
	}
	return s.inventory.ReceiptsForShipmentLine(ctx, lineID)
}

// Delete removes lines and their ledger. Callers must confirm explicitly.
func (s *Service) Delete(ctx context.Context, ids []int64, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteLines(ctx, ids)
	}); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, "shipment:delete", "shipment_line", joinIDs(ids), nil)
	return nil
}

// MarkDoneIfReceived sets the done flag once received reaches ordered.
func (s *Service) MarkDoneIfReceived(ctx context.Context, lineID int64) (bool, error) {
	line, err := s.Get(ctx, lineID)
	if err != nil {
		return false, err
	}
	if line.Done || !line.OrderedQty.IsPositive() || line.ReceivedQty.LessThan(line.OrderedQty) {
		return false, nil
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetDone(ctx, lineID, true)
	}); err != nil {
		return false, err
	}
	s.invalidate(ctx)
	return true, nil
}

// ReconcileReceived marks every fully received open line done.
func (s *Service) ReconcileReceived(ctx context.Context) (int, error) {
	var (
		marked int
		offset int
	)
	for {
		lines, err := s.List(ctx, ListFilter{Limit: listPageSize, Offset: offset})
		if err != nil {
			return marked, err
		}
		page := 0
		for _, line := range lines {
			if line.Done || !line.OrderedQty.IsPositive() || line.ReceivedQty.LessThan(line.OrderedQty) {
				continue
			}
			if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				return tx.SetDone(ctx, line.ID, true)
			}); err != nil {
				return marked, err
			}
			page++
		}
		marked += page
		if len(lines) < listPageSize {
			break
		}
		// done lines drop out of the listing
		offset += len(lines) - page
	}
	if marked > 0 {
		s.invalidate(ctx)
	}
	return marked, nil
}

// PlannedSupply sums the open quantity of the product's active, not done
// lines whose picking type delivers to locationID.
func (s *Service) PlannedSupply(ctx context.Context, productID, locationID int64) (decimal.Decimal, error) {
	if productID <= 0 || locationID <= 0 {
		return decimal.Zero, fmt.Errorf("%w: product and location required", ErrValidation)
	}
	load := func(ctx context.Context) (any, error) {
		return s.computePlannedSupply(ctx, productID, locationID)
	}
	if s.cache == nil {
		v, err := load(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		return v.(decimal.Decimal), nil
	}
	key, err := s.cache.BuildKey(ctx, strconv.FormatInt(productID, 10), strconv.FormatInt(locationID, 10))
	if err != nil {
		return decimal.Zero, err
	}
	var planned decimal.Decimal
	if err := s.cache.FetchJSON(ctx, key, &planned, load); err != nil {
		return decimal.Zero, err
	}
	return planned, nil
}

func (s *Service) computePlannedSupply(ctx context.Context, productID, locationID int64) (decimal.Decimal, error) {
	dest := map[int64]int64{}
	total := decimal.Zero
	err := s.eachLine(ctx, ListFilter{ProductID: productID}, func(line Line) error {
		if !line.Active || line.Done || line.PickingTypeID == 0 {
			return nil
		}
		loc, ok := dest[line.PickingTypeID]
		if !ok {
			pt, err := s.routing.GetPickingType(ctx, line.PickingTypeID)
			if err != nil && !errors.Is(err, masterdata.ErrNotFound) {
				return err
			}
			if pt.DefaultDestLocationID != nil {
				loc = *pt.DefaultDestLocationID
			}
			dest[line.PickingTypeID] = loc
		}
		if loc == locationID {
			total = total.Add(line.OpenQty())
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// eachLine walks every line matching filter one page at a time.
func (s *Service) eachLine(ctx context.Context, filter ListFilter, fn func(Line) error) error {
	filter.Limit, filter.Offset = listPageSize, 0
	for {
		lines, err := s.repo.ListLines(ctx, filter)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := fn(line); err != nil {
				return err
			}
		}
		if len(lines) < listPageSize {
			return nil
		}
		filter.Offset += len(lines)
	}
}

// SupplyKey identifies one planned-supply cache entry.
type SupplyKey struct {
	ProductID  int64
	LocationID int64
}

// WarmPlannedSupply recomputes planned supply for every product and
// destination pair with open lines.
func (s *Service) WarmPlannedSupply(ctx context.Context) (int, error) {
	keys := map[SupplyKey]struct{}{}
	dest := map[int64]*int64{}
	err := s.eachLine(ctx, ListFilter{OpenOnly: true}, func(line Line) error {
		if line.PickingTypeID == 0 {
			return nil
		}
		loc, ok := dest[line.PickingTypeID]
		if !ok {
			pt, err := s.routing.GetPickingType(ctx, line.PickingTypeID)
			if err != nil && !errors.Is(err, masterdata.ErrNotFound) {
				return err
			}
			loc = pt.DefaultDestLocationID
			dest[line.PickingTypeID] = loc
		}
		if loc != nil {
			keys[SupplyKey{ProductID: line.ProductID, LocationID: *loc}] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			return 0, err
		}
	}
	for k := range keys {
		if _, err := s.PlannedSupply(ctx, k.ProductID, k.LocationID); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// ReduceQtyToOrder lowers a replenishment quantity by the planned supply.
func ReduceQtyToOrder(qty, planned decimal.Decimal) decimal.Decimal {
	return decimal.Max(qty.Sub(planned), decimal.Zero)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("planned supply cache bump", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("shipment audit", slog.String("action", action), slog.Any("error", err))
	}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func joinIDs(ids []int64) string {
	out := make([]byte, 0, len(ids)*4)
	for i, id := range ids {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendInt(out, id, 10)
	}
	return string(out)
}
