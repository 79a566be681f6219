package shipment

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Share is the quantity assigned to one line.
type Share struct {
	LineID int64           `json:"line_id"`
	Qty    decimal.Decimal `json:"qty"`
}

// Allocation is the ordered distribution of a quantity across lines.
type Allocation struct {
	Shares  []Share
	Surplus decimal.Decimal
}

// Total sums the shares.
func (a Allocation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, s := range a.Shares {
		total = total.Add(s.Qty)
	}
	return total
}

// SortFIFO orders lines by expected date, oldest first, then by id. Lines
// without an expected date sort last.
func SortFIFO(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		switch {
		case a.ExpectedDate.IsZero() != b.ExpectedDate.IsZero():
			return !a.ExpectedDate.IsZero()
		case !a.ExpectedDate.Equal(b.ExpectedDate):
			return a.ExpectedDate.Before(b.ExpectedDate)
		default:
			return a.ID < b.ID
		}
	})
}

// Allocate distributes total across lines first-in first-out. Every line but
// the last receives at most its open quantity; the last line absorbs the rest
// even beyond its open quantity. Zero shares are omitted and the shares always
// sum to total when at least one line is given.
func Allocate(total decimal.Decimal, lines []Line) Allocation {
	if !total.IsPositive() {
		return Allocation{Surplus: decimal.Zero}
	}
	if len(lines) == 0 {
		return Allocation{Surplus: total}
	}
	ordered := append([]Line(nil), lines...)
	SortFIFO(ordered)

	var (
		alloc     Allocation
		remaining = total
		open      = decimal.Zero
	)
	for i, line := range ordered {
		open = open.Add(line.OpenQty())
		if !remaining.IsPositive() {
			continue
		}
		qty := decimal.Min(line.OpenQty(), remaining)
		if i == len(ordered)-1 {
			qty = remaining
		}
		if !qty.IsPositive() {
			continue
		}
		alloc.Shares = append(alloc.Shares, Share{LineID: line.ID, Qty: qty})
		remaining = remaining.Sub(qty)
	}
	alloc.Surplus = decimal.Max(total.Sub(open), decimal.Zero)
	return alloc
}
