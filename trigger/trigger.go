// Package trigger implements the protective-stop state machine shared by
// the simulated ledger and the live position monitor: trailing-stop
// activation and ratchet, stop loss, and take profit, evaluated in that
// fixed priority order. The two consumers run it over disjoint state; the
// package itself holds none.
package trigger

import "github.com/marketsim/papertrader/market"

// Stops is the mutable protective-stop state attached to one position.
// Pointer fields are unset when the stop is not configured.
type Stops struct {
	StopLoss   *float64
	TakeProfit *float64

	// Trailing stop: armed when both percentages are set, active once
	// unrealized profit reaches the activation threshold. TrailingStop
	// only ever moves in the profit-protecting direction.
	TrailingPct           *float64
	TrailingActivationPct *float64
	TrailingActive        bool
	TrailingStop          *float64
}

// Result reports what one evaluation did. At most one of Activated/Fired
// is set; evaluation stops at the first match.
type Result struct {
	Activated bool
	Fired     bool
	Reason    string
}

// Evaluate runs one price update through the state machine, mutating the
// trailing fields of s in place. unrealizedPnL and collateral feed the
// trailing activation threshold (profit as a percentage of collateral).
func Evaluate(side market.Side, price, unrealizedPnL, collateral float64, s *Stops) Result {
	if s.armedTrailing() && !s.TrailingActive && collateral > 0 {
		profitPct := unrealizedPnL / collateral * 100
		if profitPct >= *s.TrailingActivationPct {
			s.TrailingActive = true
			ts := trailingPrice(side, price, *s.TrailingPct)
			s.TrailingStop = &ts
			return Result{Activated: true}
		}
	}

	if s.TrailingActive && s.TrailingPct != nil {
		candidate := trailingPrice(side, price, *s.TrailingPct)
		s.ratchet(side, candidate)

		if s.TrailingStop != nil && crossed(side, price, *s.TrailingStop) {
			return Result{Fired: true, Reason: market.ReasonTrailingStop}
		}
	}

	if s.StopLoss != nil && crossed(side, price, *s.StopLoss) {
		return Result{Fired: true, Reason: market.ReasonStopLoss}
	}

	if s.TakeProfit != nil && crossed(side.Opposite(), price, *s.TakeProfit) {
		return Result{Fired: true, Reason: market.ReasonTakeProfit}
	}

	return Result{}
}

func (s *Stops) armedTrailing() bool {
	return s.TrailingPct != nil && s.TrailingActivationPct != nil
}

// ratchet moves the stored trailing stop toward the candidate only in the
// favorable direction: up for longs, down for shorts. It never retreats.
func (s *Stops) ratchet(side market.Side, candidate float64) {
	if s.TrailingStop == nil {
		s.TrailingStop = &candidate
		return
	}
	if side == market.Long && candidate > *s.TrailingStop {
		*s.TrailingStop = candidate
	}
	if side == market.Short && candidate < *s.TrailingStop {
		*s.TrailingStop = candidate
	}
}

// crossed reports whether price has reached the adverse threshold for the
// given side: at-or-below for longs, at-or-above for shorts.
func crossed(side market.Side, price, threshold float64) bool {
	if side == market.Long {
		return price <= threshold
	}
	return price >= threshold
}

// trailingPrice computes the stop price trailing the given percentage
// behind price: below it for longs, above it for shorts.
func trailingPrice(side market.Side, price, pct float64) float64 {
	offset := price * pct / 100
	if side == market.Long {
		return price - offset
	}
	return price + offset
}
