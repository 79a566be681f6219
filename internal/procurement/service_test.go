package procurement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-import/internal/inventory"
	"github.com/odyssey-erp/odyssey-import/internal/masterdata"
	"github.com/odyssey-erp/odyssey-import/internal/shared"
	"github.com/odyssey-erp/odyssey-import/internal/shipment"
)

type memoryProcRepo struct {
	pos     map[int64]PurchaseOrder
	poLines map[int64][]POLine
	nextID  int64
	seq     int64
}

type memoryProcTx struct {
	repo *memoryProcRepo
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{
		pos:     make(map[int64]PurchaseOrder),
		poLines: make(map[int64][]POLine),
	}
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryProcTx{repo: r})
}

func (r *memoryProcRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	return po, append([]POLine(nil), r.poLines[id]...), nil
}

func (tx *memoryProcTx) nextID() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryProcTx) NextPONumber(ctx context.Context) (string, error) {
	tx.repo.seq++
	return fmt.Sprintf("PO%05d", tx.repo.seq), nil
}

func (tx *memoryProcTx) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	id := tx.nextID()
	po.ID = id
	tx.repo.pos[id] = po
	return id, nil
}

func (tx *memoryProcTx) InsertPOLine(ctx context.Context, line POLine) error {
	line.ID = tx.nextID()
	tx.repo.poLines[line.POID] = append(tx.repo.poLines[line.POID], line)
	return nil
}

func (tx *memoryProcTx) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	po, ok := tx.repo.pos[id]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	tx.repo.pos[id] = po
	return nil
}

type stubInventory struct {
	inputs     []inventory.ReceiptInput
	confirmed  []int64
	cancelled  []int64
	confirmErr error
}

func (s *stubInventory) CreateReceipt(ctx context.Context, input inventory.ReceiptInput) (inventory.Receipt, []inventory.Move, error) {
	s.inputs = append(s.inputs, input)
	receiptID := int64(len(s.inputs))
	moves := make([]inventory.Move, len(input.Moves))
	for i := range input.Moves {
		moves[i] = inventory.Move{ID: receiptID*100 + int64(i+1), ReceiptID: receiptID}
	}
	return inventory.Receipt{ID: receiptID, Origin: input.Origin}, moves, nil
}

func (s *stubInventory) ConfirmReceipt(ctx context.Context, id int64) error {
	if s.confirmErr != nil {
		return s.confirmErr
	}
	s.confirmed = append(s.confirmed, id)
	return nil
}

func (s *stubInventory) CancelMove(ctx context.Context, id int64) (inventory.Move, error) {
	s.cancelled = append(s.cancelled, id)
	return inventory.Move{ID: id, State: inventory.StateCancelled}, nil
}

type stubMasterdata struct {
	vendors      map[int64]masterdata.Vendor
	products     map[int64]masterdata.Product
	pickingTypes map[int64]masterdata.PickingType
}

func (s stubMasterdata) GetVendor(ctx context.Context, id int64) (masterdata.Vendor, error) {
	v, ok := s.vendors[id]
	if !ok {
		return masterdata.Vendor{}, masterdata.ErrNotFound
	}
	return v, nil
}

func (s stubMasterdata) GetProduct(ctx context.Context, id int64) (masterdata.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return masterdata.Product{}, masterdata.ErrNotFound
	}
	return p, nil
}

func (s stubMasterdata) GetPickingType(ctx context.Context, id int64) (masterdata.PickingType, error) {
	pt, ok := s.pickingTypes[id]
	if !ok {
		return masterdata.PickingType{}, masterdata.ErrNotFound
	}
	return pt, nil
}

type stubShipments struct {
	inputs []shipment.NewLineInput
	err    error
}

func (s *stubShipments) CreateLines(ctx context.Context, inputs []shipment.NewLineInput) ([]shipment.Line, error) {
	if s.err != nil {
		return nil, s.err
	}
	lines := make([]shipment.Line, len(inputs))
	for i, in := range inputs {
		s.inputs = append(s.inputs, in)
		lines[i] = shipment.Line{ID: int64(len(s.inputs)), Reference: shipment.BuildReference(in.PurchaseOrderNumber, in.ManufacturerCode)}
	}
	return lines, nil
}

type memoryKeys map[string]struct{}

func (m memoryKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := m[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m[key] = struct{}{}
	return nil
}

func (m memoryKeys) Delete(ctx context.Context, key string) error {
	delete(m, key)
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

type procFixture struct {
	svc       *Service
	repo      *memoryProcRepo
	inventory *stubInventory
	shipments *stubShipments
	keys      memoryKeys
}

func newProcFixture() procFixture {
	md := stubMasterdata{
		vendors: map[int64]masterdata.Vendor{
			1: {ID: 1, Name: "Local Supplier", SupplierLocationID: int64Ptr(8)},
			2: {ID: 2, Name: "Overseas Supplier", IsImportVendor: true},
			3: {ID: 3, Name: "No Location Supplier"},
		},
		products: map[int64]masterdata.Product{
			11: {ID: 11, SKU: "BOLT", ManufacturerCode: "abc-1"},
			12: {ID: 12, SKU: "NUT", ManufacturerCode: "xyz 2"},
		},
		pickingTypes: map[int64]masterdata.PickingType{
			1: {ID: 1, Code: "IN", DefaultDestLocationID: int64Ptr(100)},
			2: {ID: 2, Code: "IMP", UseImportShipment: true},
		},
	}
	f := procFixture{repo: newMemoryProcRepo(), inventory: &stubInventory{}, shipments: &stubShipments{}, keys: memoryKeys{}}
	f.svc = NewService(f.repo, f.inventory, md, f.shipments, nil, f.keys, nil)
	return f
}

func (f procFixture) draft(t *testing.T, vendorID, pickingTypeID int64) PurchaseOrder {
	t.Helper()
	po, err := f.svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		VendorID:      vendorID,
		PickingTypeID: pickingTypeID,
		ExpectedDate:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Lines: []POLineInput{
			{ProductID: 11, Qty: decimal.NewFromInt(25), Price: decimal.NewFromInt(100)},
			{ProductID: 12, Qty: decimal.NewFromInt(4), Price: decimal.RequireFromString("2.50")},
		},
	})
	require.NoError(t, err)
	return po
}

func TestCreatePurchaseOrderNumbersSequentially(t *testing.T) {
	f := newProcFixture()
	first := f.draft(t, 1, 1)
	second := f.draft(t, 1, 1)
	require.Equal(t, "PO00001", first.Number)
	require.Equal(t, "PO00002", second.Number)
	require.Equal(t, POStatusDraft, first.Status)
	require.Equal(t, "USD", first.Currency)

	_, lines, err := f.svc.GetPurchaseOrder(context.Background(), first.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.True(t, lines[1].Subtotal().Equal(decimal.NewFromInt(10)))
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	f := newProcFixture()
	ctx := context.Background()
	_, err := f.svc.CreatePurchaseOrder(ctx, CreatePOInput{VendorID: 1})
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.CreatePurchaseOrder(ctx, CreatePOInput{VendorID: 1, Lines: []POLineInput{{ProductID: 11, Qty: decimal.Zero}}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestConfirmStandardOrderCreatesReceipt(t *testing.T) {
	f := newProcFixture()
	po := f.draft(t, 1, 1)

	outcome, err := f.svc.ConfirmPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, RouteReceipt, outcome.Route)
	require.Equal(t, POStatusConfirmed, outcome.Order.Status)
	require.Empty(t, f.shipments.inputs)
	require.Len(t, f.inventory.inputs, 1)
	input := f.inventory.inputs[0]
	require.Equal(t, int64(8), input.SourceLocationID)
	require.Equal(t, int64(100), input.DestLocationID)
	require.Equal(t, po.Number, input.Origin)
	require.Len(t, input.Moves, 2)
	require.Equal(t, []int64{outcome.ReceiptID}, f.inventory.confirmed)
}

func TestConfirmImportVendorDivertsToShipmentLines(t *testing.T) {
	f := newProcFixture()
	po := f.draft(t, 2, 1)

	outcome, err := f.svc.ConfirmPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, RouteImportShipment, outcome.Route)
	require.Len(t, outcome.ShipmentLineIDs, 2)
	require.Empty(t, f.inventory.inputs)
	require.Equal(t, "abc-1", f.shipments.inputs[0].ManufacturerCode)
	require.Equal(t, po.Number, f.shipments.inputs[0].PurchaseOrderNumber)
	require.True(t, f.shipments.inputs[0].OrderedQty.Equal(decimal.NewFromInt(25)))
	require.Equal(t, po.ExpectedDate, f.shipments.inputs[0].ExpectedDate)
}

func TestConfirmImportPickingTypeDivertsToShipmentLines(t *testing.T) {
	f := newProcFixture()
	po := f.draft(t, 1, 2)

	outcome, err := f.svc.ConfirmPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, RouteImportShipment, outcome.Route)
	require.Empty(t, f.inventory.inputs)
}

func TestConfirmRejectsIncompleteRoutingBeforeStatusChange(t *testing.T) {
	f := newProcFixture()
	po := f.draft(t, 3, 1)

	_, err := f.svc.ConfirmPurchaseOrder(context.Background(), po.ID)
	require.ErrorIs(t, err, ErrRoutingIncomplete)
	stored, _, err := f.svc.GetPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, stored.Status)
}

func TestConfirmTwiceFails(t *testing.T) {
	f := newProcFixture()
	po := f.draft(t, 1, 1)
	ctx := context.Background()

	_, err := f.svc.ConfirmPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	_, err = f.svc.ConfirmPurchaseOrder(ctx, po.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Len(t, f.inventory.inputs, 1)
}

func TestCancelPurchaseOrder(t *testing.T) {
	f := newProcFixture()
	po := f.draft(t, 1, 1)
	ctx := context.Background()

	require.NoError(t, f.svc.CancelPurchaseOrder(ctx, po.ID))
	require.ErrorIs(t, f.svc.CancelPurchaseOrder(ctx, po.ID), ErrInvalidState)
	_, err := f.svc.ConfirmPurchaseOrder(ctx, po.ID)
	require.True(t, errors.Is(err, ErrInvalidState))
	require.ErrorIs(t, f.svc.CancelPurchaseOrder(ctx, 999), ErrNotFound)
}

func TestConfirmRevertsToDraftWhenShipmentLinesFail(t *testing.T) {
	f := newProcFixture()
	ctx := context.Background()
	po := f.draft(t, 2, 1)
	f.shipments.err = errors.New("db down")

	_, err := f.svc.ConfirmPurchaseOrder(ctx, po.ID)
	require.ErrorContains(t, err, "db down")
	stored, _, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, stored.Status)
	require.Empty(t, f.keys)

	f.shipments.err = nil
	outcome, err := f.svc.ConfirmPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusConfirmed, outcome.Order.Status)
	require.Len(t, outcome.ShipmentLineIDs, 2)
}

func TestConfirmCancelsUnconfirmedReceipt(t *testing.T) {
	f := newProcFixture()
	ctx := context.Background()
	po := f.draft(t, 1, 1)
	f.inventory.confirmErr = errors.New("lock timeout")

	_, err := f.svc.ConfirmPurchaseOrder(ctx, po.ID)
	require.ErrorContains(t, err, "lock timeout")
	require.Equal(t, []int64{101, 102}, f.inventory.cancelled)
	stored, _, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, stored.Status)

	f.inventory.confirmErr = nil
	outcome, err := f.svc.ConfirmPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), outcome.ReceiptID)
	require.Equal(t, []int64{2}, f.inventory.confirmed)
}
