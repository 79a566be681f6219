package shipment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/inventory"
	"github.com/odyssey-erp/odyssey-import/internal/masterdata"
)

type memoryRepo struct {
	mu     sync.Mutex
	lines  map[int64]Line
	events []LedgerEvent
	nextID int64
	// replays makes the next WithTx calls run fn once more and roll the
	// first run back, the way a serialization retry does.
	replays int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{lines: make(map[int64]Line)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replays > 0 {
		r.replays--
		lines := make(map[int64]Line, len(r.lines))
		for id, l := range r.lines {
			lines[id] = l
		}
		events := append([]LedgerEvent(nil), r.events...)
		nextID := r.nextID
		if err := fn(ctx, &memoryTx{repo: r}); err != nil {
			return err
		}
		r.lines, r.events, r.nextID = lines, events, nextID
	}
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) imported(lineID int64) decimal.Decimal {
	total := decimal.Zero
	for _, e := range r.events {
		if e.LineID == lineID {
			total = total.Add(e.Qty)
		}
	}
	return total
}

func (r *memoryRepo) hydrate(l Line) Line {
	l.ImportedQty = r.imported(l.ID)
	return l
}

func (r *memoryRepo) sorted() []Line {
	out := make([]Line, 0, len(r.lines))
	for _, l := range r.lines {
		out = append(out, r.hydrate(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) GetLine(_ context.Context, id int64) (Line, error) {
	l, ok := r.lines[id]
	if !ok {
		return Line{}, ErrNotFound
	}
	return r.hydrate(l), nil
}

func (r *memoryRepo) LinesByIDs(_ context.Context, ids []int64) ([]Line, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Line
	for _, l := range r.sorted() {
		if want[l.ID] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListLines(_ context.Context, filter ListFilter) ([]Line, error) {
	var out []Line
	for _, l := range r.sorted() {
		if !filter.IncludeDone && (l.Done || !l.Active) {
			continue
		}
		if filter.Reference != "" && l.Reference != filter.Reference {
			continue
		}
		if filter.VendorID > 0 && l.VendorID != filter.VendorID {
			continue
		}
		if filter.ProductID > 0 && l.ProductID != filter.ProductID {
			continue
		}
		if filter.OpenOnly && !l.OrderedQty.GreaterThan(l.ImportedQty) {
			continue
		}
		out = append(out, l)
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryRepo) Ledger(_ context.Context, lineID int64) ([]LedgerEvent, error) {
	var out []LedgerEvent
	for _, e := range r.events {
		if e.LineID == lineID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memoryTx) InsertLine(_ context.Context, line Line) (int64, error) {
	t.repo.nextID++
	line.ID = t.repo.nextID
	line.ImportedQty = decimal.Zero
	t.repo.lines[line.ID] = line
	return line.ID, nil
}

func (t *memoryTx) OpenLinesByReference(_ context.Context, ref string) ([]Line, error) {
	var out []Line
	for _, l := range t.repo.sorted() {
		if l.Reference == ref && l.Active && !l.Done {
			out = append(out, l)
		}
	}
	SortFIFO(out)
	return out, nil
}

func (t *memoryTx) GetLineForUpdate(ctx context.Context, id int64) (Line, error) {
	return t.repo.GetLine(ctx, id)
}

func (t *memoryTx) AppendEvent(_ context.Context, event LedgerEvent) (bool, error) {
	if event.Kind == EventReverse && event.MovementID != nil {
		for _, e := range t.repo.events {
			if e.Kind == EventReverse && e.MovementID != nil && *e.MovementID == *event.MovementID {
				return false, nil
			}
		}
	}
	event.ID = int64(len(t.repo.events) + 1)
	t.repo.events = append(t.repo.events, event)
	return true, nil
}

func (t *memoryTx) SetLatestReceipt(_ context.Context, lineIDs []int64, receiptID int64) error {
	for _, id := range lineIDs {
		l := t.repo.lines[id]
		rid := receiptID
		l.LatestReceiptID = &rid
		t.repo.lines[id] = l
	}
	return nil
}

func (t *memoryTx) SetDone(_ context.Context, id int64, done bool) error {
	l, ok := t.repo.lines[id]
	if !ok {
		return ErrNotFound
	}
	l.Done = done
	t.repo.lines[id] = l
	return nil
}

func (t *memoryTx) DeleteLines(_ context.Context, ids []int64) error {
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		delete(t.repo.lines, id)
	}
	kept := t.repo.events[:0]
	for _, e := range t.repo.events {
		if !drop[e.LineID] {
			kept = append(kept, e)
		}
	}
	t.repo.events = kept
	return nil
}

type fakeInventory struct {
	receipts  []inventory.Receipt
	moves     []inventory.Move
	createErr error
}

func (f *fakeInventory) CreateReceipt(_ context.Context, input inventory.ReceiptInput) (inventory.Receipt, []inventory.Move, error) {
	if f.createErr != nil {
		return inventory.Receipt{}, nil, f.createErr
	}
	rc := inventory.Receipt{
		ID:               int64(len(f.receipts) + 1),
		Number:           fmt.Sprintf("WH/IN/%05d", len(f.receipts)+1),
		VendorID:         input.VendorID,
		PickingTypeID:    input.PickingTypeID,
		SourceLocationID: input.SourceLocationID,
		DestLocationID:   input.DestLocationID,
		Origin:           input.Origin,
		ScheduledAt:      input.ScheduledAt,
		State:            inventory.StateDraft,
	}
	f.receipts = append(f.receipts, rc)
	var created []inventory.Move
	for _, in := range input.Moves {
		m := inventory.Move{
			ID:               int64(len(f.moves) + 1),
			ReceiptID:        rc.ID,
			ProductID:        in.ProductID,
			PurchaseLineID:   in.PurchaseLineID,
			ShipmentLineID:   in.ShipmentLineID,
			Demand:           in.Demand,
			UnitCost:         in.UnitCost,
			SourceLocationID: input.SourceLocationID,
			DestLocationID:   input.DestLocationID,
			State:            inventory.StateDraft,
		}
		f.moves = append(f.moves, m)
		created = append(created, m)
	}
	return rc, created, nil
}

func (f *fakeInventory) ConfirmReceipt(_ context.Context, id int64) error {
	for i := range f.receipts {
		if f.receipts[i].ID == id {
			f.receipts[i].State = inventory.StateConfirmed
		}
	}
	for i := range f.moves {
		if f.moves[i].ReceiptID == id {
			f.moves[i].State = inventory.StateConfirmed
		}
	}
	return nil
}

func (f *fakeInventory) ReceivedByShipmentLine(_ context.Context, lineIDs []int64) (map[int64]decimal.Decimal, error) {
	out := make(map[int64]decimal.Decimal, len(lineIDs))
	for _, m := range f.moves {
		if m.State == inventory.StateDone && m.ShipmentLineID != nil {
			out[*m.ShipmentLineID] = out[*m.ShipmentLineID].Add(m.QuantityDone)
		}
	}
	return out, nil
}

func (f *fakeInventory) ReceiptsForShipmentLine(_ context.Context, lineID int64) ([]inventory.Receipt, error) {
	seen := map[int64]bool{}
	var out []inventory.Receipt
	for _, m := range f.moves {
		if m.ShipmentLineID != nil && *m.ShipmentLineID == lineID && !seen[m.ReceiptID] {
			seen[m.ReceiptID] = true
			out = append(out, f.receipts[m.ReceiptID-1])
		}
	}
	return out, nil
}

// movesOf returns the moves created for a shipment line.
func (f *fakeInventory) movesOf(lineID int64) []inventory.Move {
	var out []inventory.Move
	for _, m := range f.moves {
		if m.ShipmentLineID != nil && *m.ShipmentLineID == lineID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeInventory) markDone(moveID int64) inventory.Move {
	m := &f.moves[moveID-1]
	m.State = inventory.StateDone
	m.QuantityDone = m.Demand
	return *m
}

type fakeRouting struct {
	vendors      map[int64]masterdata.Vendor
	pickingTypes map[int64]masterdata.PickingType
}

func (f *fakeRouting) GetVendor(_ context.Context, id int64) (masterdata.Vendor, error) {
	v, ok := f.vendors[id]
	if !ok {
		return masterdata.Vendor{}, masterdata.ErrNotFound
	}
	return v, nil
}

func (f *fakeRouting) GetPickingType(_ context.Context, id int64) (masterdata.PickingType, error) {
	pt, ok := f.pickingTypes[id]
	if !ok {
		return masterdata.PickingType{}, masterdata.ErrNotFound
	}
	return pt, nil
}

type countingMetrics struct {
	groups    map[string]int
	surplus   int
	reversals int
}

func (m *countingMetrics) ReceiptGroup(status string) {
	if m.groups == nil {
		m.groups = map[string]int{}
	}
	m.groups[status]++
}

func (m *countingMetrics) Surplus()  { m.surplus++ }
func (m *countingMetrics) Reversal() { m.reversals++ }

var errCreateFailed = errors.New("create receipt failed")

func int64Ptr(v int64) *int64 { return &v }
