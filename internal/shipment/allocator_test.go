package shipment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) time.Time { return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC) }

func TestBuildReference(t *testing.T) {
	require.Equal(t, "PO001-ABC", BuildReference("PO001", "ABC"))
	require.Equal(t, "PO001", BuildReference(" PO001 ", ""))
	require.Equal(t, "ABC", BuildReference("", "ABC "))
	require.Equal(t, "", BuildReference("", ""))
}

func TestAllocateFillsOldestFirstAndLastAbsorbsSurplus(t *testing.T) {
	lines := []Line{
		{ID: 2, OrderedQty: qty("15"), ImportedQty: decimal.Zero, ExpectedDate: day(10)},
		{ID: 1, OrderedQty: qty("10"), ImportedQty: decimal.Zero, ExpectedDate: day(5)},
	}
	alloc := Allocate(qty("30"), lines)

	require.Len(t, alloc.Shares, 2)
	require.Equal(t, int64(1), alloc.Shares[0].LineID)
	require.True(t, alloc.Shares[0].Qty.Equal(qty("10")))
	require.Equal(t, int64(2), alloc.Shares[1].LineID)
	require.True(t, alloc.Shares[1].Qty.Equal(qty("20")))
	require.True(t, alloc.Surplus.Equal(qty("5")))
	require.True(t, alloc.Total().Equal(qty("30")))
	// caller slice untouched
	require.Equal(t, int64(2), lines[0].ID)
}

func TestAllocateConservesQuantity(t *testing.T) {
	lines := []Line{
		{ID: 1, OrderedQty: qty("4"), ImportedQty: qty("1"), ExpectedDate: day(1)},
		{ID: 2, OrderedQty: qty("2.5"), ImportedQty: qty("3"), ExpectedDate: day(2)},
		{ID: 3, OrderedQty: qty("7"), ImportedQty: decimal.Zero, ExpectedDate: day(3)},
	}
	for _, total := range []string{"0.5", "3", "3.25", "10", "42.125"} {
		alloc := Allocate(qty(total), lines)
		require.True(t, alloc.Total().Equal(qty(total)), total)
		for _, s := range alloc.Shares {
			require.True(t, s.Qty.IsPositive(), total)
		}
	}

	alloc := Allocate(qty("5"), lines)
	require.Len(t, alloc.Shares, 2)
	require.Equal(t, int64(1), alloc.Shares[0].LineID)
	require.True(t, alloc.Shares[0].Qty.Equal(qty("3")))
	require.Equal(t, int64(3), alloc.Shares[1].LineID)
	require.True(t, alloc.Shares[1].Qty.Equal(qty("2")))
	require.True(t, alloc.Surplus.IsZero())
}

func TestAllocateEdgeCases(t *testing.T) {
	line := Line{ID: 1, OrderedQty: qty("5"), ImportedQty: decimal.Zero}

	require.Empty(t, Allocate(decimal.Zero, []Line{line}).Shares)
	require.Empty(t, Allocate(qty("-2"), []Line{line}).Shares)

	none := Allocate(qty("3"), nil)
	require.Empty(t, none.Shares)
	require.True(t, none.Surplus.Equal(qty("3")))

	single := Allocate(qty("8"), []Line{line})
	require.Len(t, single.Shares, 1)
	require.True(t, single.Shares[0].Qty.Equal(qty("8")))
	require.True(t, single.Surplus.Equal(qty("3")))
}

func TestSortFIFOPutsUndatedLast(t *testing.T) {
	lines := []Line{
		{ID: 3},
		{ID: 2, ExpectedDate: day(4)},
		{ID: 1, ExpectedDate: day(4)},
		{ID: 4, ExpectedDate: day(1)},
	}
	SortFIFO(lines)
	ids := []int64{lines[0].ID, lines[1].ID, lines[2].ID, lines[3].ID}
	require.Equal(t, []int64{4, 1, 2, 3}, ids)
}

func TestLineOpenQtyAndState(t *testing.T) {
	l := Line{OrderedQty: qty("10"), ImportedQty: decimal.Zero}
	require.Equal(t, StateWaiting, l.State())
	require.True(t, l.OpenQty().Equal(qty("10")))

	l.ImportedQty = qty("4")
	require.Equal(t, StatePartiallyImported, l.State())

	l.ImportedQty = qty("12")
	require.Equal(t, StateImported, l.State())
	require.True(t, l.OpenQty().IsZero())

	l.Done = true
	require.Equal(t, StateDone, l.State())
}
