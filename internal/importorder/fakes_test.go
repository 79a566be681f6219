package importorder

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-import/internal/masterdata"
	"github.com/odyssey-erp/odyssey-import/internal/procurement"
	"github.com/odyssey-erp/odyssey-import/internal/shared"
)

type memoryRepo struct {
	orders map[int64]Order
	lines  map[int64]Line
	nextID int64
	seq    int64
	// failLine makes SetIncomingQty fail for that line.
	failLine int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: map[int64]Order{}, lines: map[int64]Line{}}
}

// WithTx restores orders and lines when fn fails.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	orders := make(map[int64]Order, len(r.orders))
	for k, v := range r.orders {
		orders[k] = v
	}
	lines := make(map[int64]Line, len(r.lines))
	for k, v := range r.lines {
		lines[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.orders, r.lines = orders, lines
		return err
	}
	return nil
}

func (r *memoryRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.Lines = nil
	for _, l := range r.sortedLines() {
		if l.OrderID == id {
			o.Lines = append(o.Lines, l)
		}
	}
	return o, nil
}

func (r *memoryRepo) ListOrders(_ context.Context, filter ListFilter) ([]Order, error) {
	var out []Order
	for _, o := range r.orders {
		if filter.VendorID > 0 && o.VendorID != filter.VendorID {
			continue
		}
		if filter.State != "" && o.State != filter.State {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

func (r *memoryRepo) LinesByReference(_ context.Context, ref string) ([]Line, error) {
	var out []Line
	for _, l := range r.sortedLines() {
		if l.TechnicalReference == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryRepo) sortedLines() []Line {
	out := make([]Line, 0, len(r.lines))
	for _, l := range r.lines {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memoryTx) NextName(context.Context) (string, error) {
	t.repo.seq++
	return fmt.Sprintf("IO%05d", t.repo.seq), nil
}

func (t *memoryTx) InsertOrder(_ context.Context, o Order) (int64, error) {
	t.repo.nextID++
	o.ID = t.repo.nextID
	o.Lines = nil
	t.repo.orders[o.ID] = o
	return o.ID, nil
}

func (t *memoryTx) InsertLine(_ context.Context, l Line) (int64, error) {
	t.repo.nextID++
	l.ID = t.repo.nextID
	t.repo.lines[l.ID] = l
	return l.ID, nil
}

func (t *memoryTx) GetStateForUpdate(_ context.Context, id int64) (State, error) {
	o, ok := t.repo.orders[id]
	if !ok {
		return "", ErrNotFound
	}
	return o.State, nil
}

func (t *memoryTx) UpdateState(_ context.Context, id int64, state State) error {
	o := t.repo.orders[id]
	o.State = state
	t.repo.orders[id] = o
	return nil
}

func (t *memoryTx) SetIncomingQty(_ context.Context, lineID int64, qty decimal.Decimal) error {
	l, ok := t.repo.lines[lineID]
	if !ok {
		return ErrNotFound
	}
	if lineID == t.repo.failLine {
		return errors.New("deadlock detected")
	}
	l.IncomingQty = qty
	t.repo.lines[lineID] = l
	return nil
}

type stubProducts map[int64]masterdata.Product

func (s stubProducts) GetProduct(_ context.Context, id int64) (masterdata.Product, error) {
	p, ok := s[id]
	if !ok {
		return masterdata.Product{}, masterdata.ErrNotFound
	}
	return p, nil
}

type recordingPurchases struct {
	inputs    []procurement.CreatePOInput
	cancelled []int64
	err       error
}

func (r *recordingPurchases) CreatePurchaseOrder(_ context.Context, input procurement.CreatePOInput) (procurement.PurchaseOrder, error) {
	if r.err != nil {
		return procurement.PurchaseOrder{}, r.err
	}
	r.inputs = append(r.inputs, input)
	n := int64(len(r.inputs))
	return procurement.PurchaseOrder{ID: 500 + n, Number: fmt.Sprintf("PO%05d", n), VendorID: input.VendorID, Status: procurement.POStatusDraft}, nil
}

func (r *recordingPurchases) CancelPurchaseOrder(_ context.Context, id int64) error {
	r.cancelled = append(r.cancelled, id)
	return nil
}

type memoryIdempotency map[string]bool

func (m memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if m[key] {
		return shared.ErrIdempotencyConflict
	}
	m[key] = true
	return nil
}

func (m memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

type rowCounter map[string]int

func (c rowCounter) AddRows(_ string, status string, n int) { c[status] += n }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testProducts() stubProducts {
	return stubProducts{
		11: {ID: 11, SKU: "VALVE", ManufacturerCode: "ABC"},
		12: {ID: 12, SKU: "SEAL", ManufacturerCode: "XYZ"},
		13: {ID: 13, SKU: "MISC"},
	}
}
