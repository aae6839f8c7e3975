// Package paper adapts the in-process ledger to the broker gateway
// interface so the monitor can watch paper positions exactly as it would
// watch a live exchange.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/marketsim/papertrader/broker"
	"github.com/marketsim/papertrader/sim"
)

type Gateway struct {
	mu     sync.Mutex
	engine *sim.Engine
	prices map[string]float64
}

func New(engine *sim.Engine) *Gateway {
	return &Gateway{
		engine: engine,
		prices: make(map[string]float64),
	}
}

// SetPrice publishes a new mark price to gateway readers. It does not
// touch the ledger; the price feed drives both separately.
func (g *Gateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

func (g *Gateway) Price(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("price %s: %w", symbol, broker.ErrSymbolNotFound)
	}
	return p, nil
}

func (g *Gateway) OpenPositions(_ context.Context) ([]broker.LivePosition, error) {
	positions := g.engine.Positions()

	out := make([]broker.LivePosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, broker.LivePosition{
			Symbol:     p.Symbol,
			Side:       p.Side,
			Size:       p.Size,
			EntryPrice: p.EntryPrice,
			Leverage:   p.Leverage,

			StopLoss:              p.Stops.StopLoss,
			TakeProfit:            p.Stops.TakeProfit,
			TrailingPct:           p.Stops.TrailingPct,
			TrailingActivationPct: p.Stops.TrailingActivationPct,
		})
	}
	return out, nil
}
