// Package risk derives liquidation-distance classifications and admission
// decisions from the margin schedule. Everything here is computed fresh on
// every call and never stored.
package risk

import (
	"github.com/marketsim/papertrader/margin"
	"github.com/marketsim/papertrader/market"
)

// Level classifies how close a position sits to its liquidation price.
type Level int

const (
	Safe Level = iota
	Warning
	Danger
	Critical
)

func (l Level) String() string {
	switch l {
	case Safe:
		return "safe"
	case Warning:
		return "warning"
	case Danger:
		return "danger"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Distance thresholds, in percent of current price. Fixed policy constants.
const (
	safeDistancePct    = 20.0
	warningDistancePct = 10.0
	dangerDistancePct  = 5.0
)

// canOpenUsageLimit caps maintenance margin at 80% of balance before new
// exposure is refused.
const canOpenUsageLimit = 0.80

// Position is the view of an open position the assessor needs. Callers
// pass it by value; the assessor never retains it.
type Position struct {
	Symbol     string
	Side       market.Side
	Size       float64
	EntryPrice float64
	Leverage   float64
}

// Notional is the gross exposure at entry.
func (p Position) Notional() float64 {
	return p.Size * p.EntryPrice
}

// Assessment is the derived risk picture for one position at one price.
type Assessment struct {
	LiquidationPrice         float64
	CurrentPrice             float64
	DistanceToLiquidationPct float64
	MaintenanceMargin        float64
	MaintenanceMarginRate    float64
	Level                    Level
	CanOpenPosition          bool
	MaxSafePositionSize      float64
}

// Assess computes the liquidation price with accountBalance as the backstop
// capital, the signed distance from currentPrice to it (positive while
// safe), and the resulting classification.
func Assess(pos Position, currentPrice, accountBalance float64) Assessment {
	liq := margin.LiquidationPrice(pos.EntryPrice, pos.Size, pos.Side, accountBalance)
	maint, rate := margin.MaintenanceMargin(pos.Notional())

	var distance float64
	if currentPrice > 0 {
		if pos.Side == market.Long {
			distance = (currentPrice - liq) / currentPrice * 100
		} else {
			distance = (liq - currentPrice) / currentPrice * 100
		}
	}

	level := Critical
	switch {
	case distance > safeDistancePct:
		level = Safe
	case distance > warningDistancePct:
		level = Warning
	case distance > dangerDistancePct:
		level = Danger
	}

	canOpen := accountBalance > 0 && maint/accountBalance < canOpenUsageLimit

	var maxSafe float64
	if currentPrice > 0 && accountBalance > 0 {
		maxSafe = accountBalance * 0.5 / currentPrice
	}

	return Assessment{
		LiquidationPrice:         liq,
		CurrentPrice:             currentPrice,
		DistanceToLiquidationPct: distance,
		MaintenanceMargin:        maint,
		MaintenanceMarginRate:    rate,
		Level:                    level,
		CanOpenPosition:          canOpen,
		MaxSafePositionSize:      maxSafe,
	}
}
