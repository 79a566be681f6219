package importorder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func createOrder(t *testing.T, svc *Service) Order {
	t.Helper()
	order, err := svc.Create(context.Background(), CreateInput{
		VendorID:      7,
		PickingTypeID: 2,
		ExpectedDate:  time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{
			{ProductID: 11, Quantity: d("10"), UnitPrice: d("100")},
			{ProductID: 12, Quantity: d("5"), UnitPrice: d("2.5")},
			{ProductID: 13, Quantity: d("1"), UnitPrice: d("0")},
		},
	})
	require.NoError(t, err)
	return order
}

func TestCreateDerivesTechnicalReferences(t *testing.T) {
	svc := NewService(newMemoryRepo(), testProducts(), nil, nil)
	order := createOrder(t, svc)

	require.Equal(t, "IO00001", order.Name)
	require.Equal(t, StateDraft, order.State)
	require.Equal(t, "USD", order.Currency)
	require.False(t, order.Date.IsZero())
	require.Len(t, order.Lines, 3)
	require.Equal(t, "IO00001-ABC", order.Lines[0].TechnicalReference)
	require.Equal(t, "IO00001-XYZ", order.Lines[1].TechnicalReference)
	require.Equal(t, "IO00001", order.Lines[2].TechnicalReference)
	require.True(t, order.Lines[1].Subtotal().Equal(d("12.5")))
	require.True(t, order.AmountTotal().Equal(d("1012.5")))

	second := createOrder(t, svc)
	require.Equal(t, "IO00002", second.Name)

	loaded, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.True(t, loaded.AmountTotal().Equal(d("1012.5")))
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), testProducts(), nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.Create(ctx, CreateInput{VendorID: 1, Lines: []LineInput{{ProductID: 11, Quantity: d("0")}}})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.Create(ctx, CreateInput{VendorID: 1, Lines: []LineInput{{ProductID: 11, Quantity: d("1"), UnitPrice: d("-1")}}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestStateTransitions(t *testing.T) {
	svc := NewService(newMemoryRepo(), testProducts(), nil, nil)
	ctx := context.Background()
	order := createOrder(t, svc)

	done, err := svc.Confirm(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StateDone, done.State)

	_, err = svc.Confirm(ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	cancelled, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StateCancel, cancelled.State)

	draft, err := svc.SetDraft(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StateDraft, draft.State)

	_, err = svc.SetDraft(ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.Cancel(ctx, 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersByState(t *testing.T) {
	svc := NewService(newMemoryRepo(), testProducts(), nil, nil)
	ctx := context.Background()
	first := createOrder(t, svc)
	createOrder(t, svc)
	_, err := svc.Confirm(ctx, first.ID)
	require.NoError(t, err)

	done, err := svc.List(ctx, ListFilter{State: StateDone})
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Equal(t, first.ID, done[0].ID)

	all, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "IO00002", all[0].Name)
}

func TestSetIncomingRejectsNegative(t *testing.T) {
	svc := NewService(newMemoryRepo(), testProducts(), nil, nil)
	order := createOrder(t, svc)
	ctx := context.Background()

	require.ErrorIs(t, svc.SetIncoming(ctx, []int64{order.Lines[0].ID}, d("-1")), ErrValidation)
	require.NoError(t, svc.SetIncoming(ctx, []int64{order.Lines[0].ID}, d("4")))
	loaded, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, loaded.Lines[0].IncomingQty.Equal(d("4")))
	require.ErrorIs(t, svc.SetIncoming(ctx, []int64{999}, d("1")), ErrNotFound)
}
