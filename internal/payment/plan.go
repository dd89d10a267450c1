package payment

import (
	"fmt"

	"splitpay/internal/common/money"
)

// PlannedCharge is one (instrument, amount) step of a charge plan.
type PlannedCharge struct {
	Ref    int
	Amount money.Money
}

// ChargePlan is the ordered debit sequence a strategy produces. Its amounts
// always sum exactly to the requested total; zero amounts are legal only as
// the tail a sequential fill never reaches.
type ChargePlan []PlannedCharge

// Strategy produces a charge plan from a total and the balances of the
// selected instruments, given in selection order.
type Strategy interface {
	Plan(total money.Money, refs []int, balances []money.Money) (ChargePlan, error)
}

// Sequential fills instruments in caller order, charging each
// min(remaining, balance) until the total is covered. Aggregate shortfall is
// detected up front, before any money is touched.
type Sequential struct{}

// Plan implements Strategy.
func (Sequential) Plan(total money.Money, refs []int, balances []money.Money) (ChargePlan, error) {
	available := money.Zero(total.Currency)
	for _, b := range balances {
		available = available.MustAdd(b)
	}
	if available.LessThan(total) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientAggregateFunds, available, total)
	}

	plan := make(ChargePlan, len(refs))
	remaining := total
	for i, ref := range refs {
		amount := money.Min(remaining, balances[i])
		if remaining.IsZero() {
			amount = money.Zero(total.Currency)
		}
		plan[i] = PlannedCharge{Ref: ref, Amount: amount}
		remaining = remaining.MustSub(amount)
	}
	return plan, nil
}

// FixedAmounts charges caller-supplied amounts, one per instrument in the
// same order. A residual within the one-minor-unit tolerance is folded into
// the first amount so the plan sums exactly.
type FixedAmounts struct {
	Amounts []money.Money
}

// Plan implements Strategy.
func (f FixedAmounts) Plan(total money.Money, refs []int, balances []money.Money) (ChargePlan, error) {
	if len(f.Amounts) != len(refs) {
		return nil, fmt.Errorf("%w: %d amounts for %d instruments", ErrSplitCountMismatch, len(f.Amounts), len(refs))
	}
	for i, a := range f.Amounts {
		if a.Currency != total.Currency {
			return nil, fmt.Errorf("%w: amount %d is %s, total is %s", money.ErrCurrencyMismatch, i, a.Currency, total.Currency)
		}
		if a.IsNegative() {
			return nil, fmt.Errorf("%w: amount %d is negative", ErrSplitSumMismatch, i)
		}
	}
	if !money.SumEquals(f.Amounts, total) {
		return nil, fmt.Errorf("%w: amounts sum to %s, total is %s", ErrSplitSumMismatch, money.MustSum(f.Amounts...), total)
	}

	amounts := append([]money.Money(nil), f.Amounts...)
	residual := total.MustSub(money.MustSum(amounts...))
	amounts[0] = amounts[0].MustAdd(residual)
	if amounts[0].IsNegative() {
		return nil, fmt.Errorf("%w: rounding correction drives first amount negative", ErrSplitSumMismatch)
	}

	plan := make(ChargePlan, len(refs))
	for i, ref := range refs {
		plan[i] = PlannedCharge{Ref: ref, Amount: amounts[i]}
	}
	return plan, nil
}

// RatioSplit derives per-instrument amounts from a saved profile's ratio
// vector. The rounding residual lands entirely on the first instrument,
// which keeps the derived vector deterministic; the result is then validated
// exactly like a fixed split.
type RatioSplit struct {
	Ratios []float64
}

// Plan implements Strategy.
func (r RatioSplit) Plan(total money.Money, refs []int, balances []money.Money) (ChargePlan, error) {
	if len(r.Ratios) != len(refs) {
		return nil, fmt.Errorf("%w: %d ratios for %d instruments", ErrSplitCountMismatch, len(r.Ratios), len(refs))
	}

	derived := total.AllocateByRatios(r.Ratios)
	return FixedAmounts{Amounts: derived}.Plan(total, refs, balances)
}
