package sim

import (
	"time"

	"github.com/marketsim/papertrader/market"
	"github.com/marketsim/papertrader/trigger"
)

// Position is one open position in the paper ledger. Collateral is the
// cash locked away from the free balance while the position is open;
// closing returns it plus realized profit and loss.
type Position struct {
	Symbol     string
	Side       market.Side
	Size       float64
	EntryPrice float64
	Leverage   float64
	Collateral float64
	OpenTime   time.Time

	CurrentPrice     float64
	UnrealizedPnL    float64
	LiquidationPrice float64
	HighestPrice     float64
	LowestPrice      float64

	Stops trigger.Stops
}

// Notional is the gross exposure at entry.
func (p *Position) Notional() float64 {
	return p.Size * p.EntryPrice
}

// markLocked refreshes the mark-to-market fields for a new price.
func (p *Position) markLocked(price float64) {
	p.CurrentPrice = price
	p.UnrealizedPnL = (price - p.EntryPrice) * p.Side.Mult() * p.Size

	if p.HighestPrice == 0 || price > p.HighestPrice {
		p.HighestPrice = price
	}
	if p.LowestPrice == 0 || price < p.LowestPrice {
		p.LowestPrice = price
	}
}

// liquidated reports whether price has reached the liquidation level.
func (p *Position) liquidated(price float64) bool {
	if p.LiquidationPrice <= 0 {
		return false
	}
	if p.Side == market.Long {
		return price <= p.LiquidationPrice
	}
	return price >= p.LiquidationPrice
}

// CloseResult describes one position close, whole or partial.
type CloseResult struct {
	Symbol      string
	Side        market.Side
	Size        float64
	EntryPrice  float64
	ClosePrice  float64
	Reason      string
	RealizedPnL float64
	Fee         float64
	CloseTime   time.Time
}
