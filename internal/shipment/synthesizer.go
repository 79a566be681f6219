package shipment

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/inventory"
)

// Synthesizer turns allocated shares into consolidated receipts, one per
// vendor and batch date.
type Synthesizer struct {
	inventory InventoryPort
	routing   RoutingPort
	repo      RepositoryPort
	metrics   MetricsPort
	logger    *slog.Logger
}

// NewSynthesizer constructs a Synthesizer.
func NewSynthesizer(inv InventoryPort, routing RoutingPort, repo RepositoryPort, metrics MetricsPort, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{inventory: inv, routing: routing, repo: repo, metrics: metrics, logger: logger}
}

// Synthesize creates one confirmed receipt per vendor among the lines with a
// positive share in batch. Groups that cannot be routed are reported as
// skipped, creation errors as failed; processing always continues.
func (s *Synthesizer) Synthesize(ctx context.Context, batch Batch, lines []Line) []GroupResult {
	byVendor := make(map[int64][]Line)
	for _, line := range lines {
		qty, ok := batch.Shares[line.ID]
		if !ok || !qty.IsPositive() {
			continue
		}
		byVendor[line.VendorID] = append(byVendor[line.VendorID], line)
	}
	vendors := make([]int64, 0, len(byVendor))
	for id := range byVendor {
		vendors = append(vendors, id)
	}
	sort.Slice(vendors, func(i, j int) bool { return vendors[i] < vendors[j] })

	results := make([]GroupResult, 0, len(vendors))
	for _, vendorID := range vendors {
		group := byVendor[vendorID]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		res := s.synthesizeGroup(ctx, batch, vendorID, group)
		if s.metrics != nil {
			s.metrics.ReceiptGroup(string(res.Status))
		}
		if res.Status != GroupCreated {
			s.logger.Warn("receipt group not created",
				slog.Int64("vendor_id", vendorID),
				slog.String("status", string(res.Status)),
				slog.String("reason", res.Reason))
		}
		results = append(results, res)
	}
	return results
}

func (s *Synthesizer) synthesizeGroup(ctx context.Context, batch Batch, vendorID int64, group []Line) GroupResult {
	res := GroupResult{VendorID: vendorID, Date: batch.Date, LineIDs: make([]int64, 0, len(group))}
	for _, line := range group {
		res.LineIDs = append(res.LineIDs, line.ID)
	}
	fail := func(status GroupStatus, reason string) GroupResult {
		res.Status = status
		res.Reason = reason
		return res
	}

	first := group[0]
	for _, line := range group[1:] {
		if line.PurchaseOrderID < first.PurchaseOrderID {
			first = line
		}
	}
	if first.PickingTypeID == 0 {
		return fail(GroupSkipped, ReasonMissingPickingType)
	}
	pickingType, err := s.routing.GetPickingType(ctx, first.PickingTypeID)
	if err != nil {
		return fail(GroupFailed, err.Error())
	}
	if pickingType.DefaultDestLocationID == nil {
		return fail(GroupSkipped, ReasonMissingDestination)
	}
	vendor, err := s.routing.GetVendor(ctx, vendorID)
	if err != nil {
		return fail(GroupFailed, err.Error())
	}
	if vendor.SupplierLocationID == nil {
		return fail(GroupSkipped, ReasonMissingSupplierLocation)
	}

	input := inventory.ReceiptInput{
		VendorID:         vendorID,
		PickingTypeID:    pickingType.ID,
		SourceLocationID: *vendor.SupplierLocationID,
		DestLocationID:   *pickingType.DefaultDestLocationID,
		Origin:           originOf(group),
		ScheduledAt:      batch.Date,
	}
	for _, line := range group {
		lineID := line.ID
		purchaseLineID := line.PurchaseLineID
		move := inventory.MoveInput{
			ProductID:      line.ProductID,
			ShipmentLineID: &lineID,
			Demand:         batch.Shares[line.ID],
			UnitCost:       line.UnitPrice,
		}
		if purchaseLineID > 0 {
			move.PurchaseLineID = &purchaseLineID
		}
		input.Moves = append(input.Moves, move)
	}
	receipt, _, err := s.inventory.CreateReceipt(ctx, input)
	if err != nil {
		return fail(GroupFailed, err.Error())
	}
	res.ReceiptID = receipt.ID
	res.ReceiptNumber = receipt.Number
	if err := s.inventory.ConfirmReceipt(ctx, receipt.ID); err != nil {
		return fail(GroupFailed, err.Error())
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetLatestReceipt(ctx, res.LineIDs, receipt.ID)
	}); err != nil {
		return fail(GroupFailed, err.Error())
	}
	res.Status = GroupCreated
	return res
}

// originOf joins the sorted unique purchase order numbers of a group.
func originOf(group []Line) string {
	seen := make(map[string]struct{}, len(group))
	numbers := make([]string, 0, len(group))
	for _, line := range group {
		if line.PurchaseOrderNumber == "" {
			continue
		}
		if _, ok := seen[line.PurchaseOrderNumber]; ok {
			continue
		}
		seen[line.PurchaseOrderNumber] = struct{}{}
		numbers = append(numbers, line.PurchaseOrderNumber)
	}
	sort.Strings(numbers)
	return strings.Join(numbers, ", ")
}

// batchTotal sums a batch, used for logging.
func batchTotal(b Batch) decimal.Decimal {
	total := decimal.Zero
	for _, q := range b.Shares {
		total = total.Add(q)
	}
	return total
}
