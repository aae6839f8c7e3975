package margin

import "math"

// Tier is one bracket of the notional-based margin schedule. Brackets are
// contiguous, non-overlapping and cover [0, +inf); a notional value matches
// the tier whose [NotionalMin, NotionalMax) range contains it.
type Tier struct {
	NotionalMin          float64
	NotionalMax          float64
	InitialMarginRate    float64
	MaintenanceRate      float64
	MaintenanceDeduction float64
}

// DefaultTiers is the process-wide margin policy. The deduction of each
// tier keeps the schedule marginal: a position pays the higher rate only on
// the notional above the bracket floor.
var DefaultTiers = []Tier{
	{NotionalMin: 0, NotionalMax: 500_000, InitialMarginRate: 0.02, MaintenanceRate: 0.01, MaintenanceDeduction: 0},
	{NotionalMin: 500_000, NotionalMax: 1_000_000, InitialMarginRate: 0.05, MaintenanceRate: 0.025, MaintenanceDeduction: 7_500},
	{NotionalMin: 1_000_000, NotionalMax: math.Inf(1), InitialMarginRate: 0.10, MaintenanceRate: 0.05, MaintenanceDeduction: 32_500},
}

// ResolveTier maps a non-negative notional value to its tier. Values at or
// beyond the last bracket floor resolve to the last tier, so the lookup
// always succeeds.
func ResolveTier(notional float64) Tier {
	for _, t := range DefaultTiers {
		if notional >= t.NotionalMin && notional < t.NotionalMax {
			return t
		}
	}
	return DefaultTiers[len(DefaultTiers)-1]
}
