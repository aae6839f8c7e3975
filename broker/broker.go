// Package broker defines the outward-facing ports of the engine: where
// prices come from and where live positions are read from and closed. The
// paper ledger and the monitor both program against these interfaces so an
// in-process simulator and a real exchange adapter are interchangeable.
package broker

import (
	"context"

	"github.com/marketsim/papertrader/market"
)

// PriceSource answers the current mark price for a symbol.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Gateway is the full exchange-facing port: prices plus the open-position
// book the monitor mirrors.
type Gateway interface {
	PriceSource
	OpenPositions(ctx context.Context) ([]LivePosition, error)
}

// LivePosition is a position as reported by the gateway, including the
// protective-stop configuration attached to it. Pointer fields are unset
// when the corresponding stop is not configured.
type LivePosition struct {
	Symbol     string
	Side       market.Side
	Size       float64
	EntryPrice float64
	Leverage   float64

	StopLoss              *float64
	TakeProfit            *float64
	TrailingPct           *float64
	TrailingActivationPct *float64
}

// CloseRequest is the monitor's instruction to close a position. Consumers
// receive these on a channel and decide how to execute them.
type CloseRequest struct {
	Symbol string
	Side   market.Side
	Size   float64
	Price  float64
	Reason string
}
