package sim

import (
	"time"

	"github.com/marketsim/papertrader/market"
)

// OrderRequest is a proposed order as submitted to the ledger.
type OrderRequest struct {
	Symbol   string
	Side     market.OrderSide
	Type     market.OrderType
	Size     float64
	Price    float64
	Leverage float64
}

// Order is the recorded lifecycle of one submitted order. Rejected orders
// are kept with status Cancelled and the refusal reason attached. Filled
// is the executed quantity: the whole size for market fills, zero for
// resting and cancelled orders.
type Order struct {
	ID       string
	Symbol   string
	Side     market.OrderSide
	Type     market.OrderType
	Size     float64
	Filled   float64
	Price    float64
	Leverage float64
	Status   market.OrderStatus
	Reason   string

	CreatedAt time.Time
	FilledAt  time.Time
}
