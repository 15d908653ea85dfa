// Package mining covers the two ways a player earns without trading:
// devices that pay their owner on an interval, and rock nodes that are
// worn down by hits and grow back later.
package mining

// Accumulator pays IncomePerInterval for every whole interval that has
// elapsed. Leftover ticks carry over to the next call.
type Accumulator struct {
	IncomePerInterval int
	IntervalTicks     int

	pending int
}

func NewAccumulator(income, intervalTicks int) *Accumulator {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	return &Accumulator{IncomePerInterval: income, IntervalTicks: intervalTicks}
}

// Advance adds ticks and returns the payout that is now due.
func (a *Accumulator) Advance(ticks int) int {
	if a == nil || ticks <= 0 || a.IntervalTicks <= 0 {
		return 0
	}
	a.pending += ticks
	if a.pending < a.IntervalTicks {
		return 0
	}
	intervals := a.pending / a.IntervalTicks
	a.pending -= intervals * a.IntervalTicks
	amount := a.IncomePerInterval * intervals
	if amount < 0 {
		return 0
	}
	return amount
}

func (a *Accumulator) Pending() int { return a.pending }
