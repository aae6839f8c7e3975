// Package margin implements the tiered margin schedule: tier resolution,
// maintenance and initial margin, and liquidation price derivation.
//
// The public API is float64 like the rest of the engine; the arithmetic
// runs on shopspring decimals so the tier deduction and liquidation buffer
// do not accumulate binary rounding error.
package margin

import (
	"github.com/shopspring/decimal"

	"github.com/marketsim/papertrader/market"
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// MaintenanceMargin returns the maintenance margin owed on a notional
// exposure and the rate of the tier it resolved to. The tier deduction is
// subtracted so large positions pay the higher rate only on the notional
// above the bracket floor; the result never goes below zero.
func MaintenanceMargin(notional float64) (marginReq, rate float64) {
	t := ResolveTier(notional)

	m := decimal.NewFromFloat(notional).
		Mul(decimal.NewFromFloat(t.MaintenanceRate)).
		Sub(decimal.NewFromFloat(t.MaintenanceDeduction))
	if m.IsNegative() {
		return 0, t.MaintenanceRate
	}
	return m.InexactFloat64(), t.MaintenanceRate
}

// InitialMargin is the collateral required to open size units at markPrice
// with the given leverage. Non-positive leverage yields zero; callers
// validate leverage before committing funds.
func InitialMargin(size, markPrice, leverage float64) float64 {
	if leverage <= 0 {
		return 0
	}
	return decimal.NewFromFloat(size).
		Mul(decimal.NewFromFloat(markPrice)).
		Div(decimal.NewFromFloat(leverage)).
		InexactFloat64()
}

// LiquidationPrice derives the price at which a position's backstop capital
// is exhausted:
//
//	liq = entry - side * backstop / size / (1 - mmr * side)
//
// where mmr is the maintenance rate of the tier the entry notional resolves
// to, and backstop is half of marginAvailable - only half the free balance
// is counted as capital defending the position, matching the half-balance
// sizing rule used by the risk assessor. Longs liquidate below entry,
// shorts above.
//
// size must be positive; zero-size positions have no liquidation price and
// yield 0. A long whose backstop exceeds its entry notional also yields 0:
// the price cannot fall far enough to exhaust it.
func LiquidationPrice(entry, size float64, side market.Side, marginAvailable float64) float64 {
	if size <= 0 {
		return 0
	}

	t := ResolveTier(entry * size)
	mmr := decimal.NewFromFloat(t.MaintenanceRate)
	sd := decimal.NewFromInt(int64(side))

	backstop := decimal.NewFromFloat(marginAvailable).Div(two)
	buffer := backstop.
		Div(decimal.NewFromFloat(size)).
		Div(one.Sub(mmr.Mul(sd)))

	liq := decimal.NewFromFloat(entry).Sub(sd.Mul(buffer))
	if liq.IsNegative() {
		return 0
	}
	return liq.InexactFloat64()
}
