// Package sim is the paper-trading ledger: a mutex-guarded engine holding
// the account balance and the open positions, mutated by orders, price
// updates, and protective-stop triggers. Every mutation is transactional -
// it either completes and is journaled, or leaves the ledger untouched.
package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marketsim/papertrader/journal"
	"github.com/marketsim/papertrader/margin"
	"github.com/marketsim/papertrader/market"
	"github.com/marketsim/papertrader/pkg/id"
	"github.com/marketsim/papertrader/risk"
	"github.com/marketsim/papertrader/trigger"
)

// DefaultLiquidationFeeRate is the fraction of position collateral charged
// when a position is force-closed at its liquidation price.
const DefaultLiquidationFeeRate = 0.01

type Engine struct {
	mu        sync.Mutex
	balance   float64
	positions map[string]*Position
	orders    map[string]*Order
	journal   journal.Recorder
	liqFee    float64
}

func NewEngine(balance float64, j journal.Recorder) *Engine {
	if j == nil {
		j = journal.NewMemory()
	}
	return &Engine{
		balance:   balance,
		positions: make(map[string]*Position),
		orders:    make(map[string]*Order),
		journal:   j,
		liqFee:    DefaultLiquidationFeeRate,
	}
}

// SetLiquidationFeeRate overrides the default liquidation fee. Must be
// called before trading starts.
func (e *Engine) SetLiquidationFeeRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.liqFee = rate
}

// PlaceOrder submits an order against the ledger. Market orders execute
// immediately at the request price; limit orders rest until cancelled.
// Rejected orders are recorded with status Cancelled and returned together
// with the refusal error.
func (e *Engine) PlaceOrder(req OrderRequest) (*Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	o := &Order{
		ID:        id.New(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Size:      req.Size,
		Price:     req.Price,
		Leverage:  req.Leverage,
		Status:    market.OrderOpen,
		CreatedAt: now,
	}
	e.orders[o.ID] = o

	if req.Symbol == "" || req.Size <= 0 || req.Price <= 0 || req.Leverage <= 0 {
		o.Status = market.OrderCancelled
		o.Reason = "size, price and leverage must be positive"
		return o, fmt.Errorf("place order: %w: %s", ErrInvalidOrder, o.Reason)
	}

	if req.Type == market.LimitOrder {
		// Resting order; matching is outside this engine.
		return o, nil
	}

	if err := e.executeLocked(o, req, now); err != nil {
		o.Status = market.OrderCancelled
		o.Reason = err.Error()
		return o, err
	}

	o.Status = market.OrderFilled
	o.Filled = o.Size
	o.FilledAt = now
	e.snapshotLocked(now)
	return o, nil
}

// executeLocked routes a market order to the open, grow, reduce, close or
// reversal path depending on the existing position for the symbol.
func (e *Engine) executeLocked(o *Order, req OrderRequest, now time.Time) error {
	pos, ok := e.positions[req.Symbol]
	if !ok || pos.Side == req.Side.PositionSide() {
		return e.increaseLocked(req, now)
	}

	switch {
	case req.Size < pos.Size:
		e.reduceLocked(pos, req.Size, req.Price, now)
		return nil
	case req.Size == pos.Size:
		e.closePositionLocked(pos, req.Price, market.ReasonManual, now)
		return nil
	default:
		return e.reverseLocked(pos, req, now)
	}
}

// increaseLocked opens a new position or grows an existing same-side one.
// The collateral check runs before the risk gates so an unfundable order
// never reaches admission control.
func (e *Engine) increaseLocked(req OrderRequest, now time.Time) error {
	collateral := margin.InitialMargin(req.Size, req.Price, req.Leverage)
	if collateral > e.balance {
		return fmt.Errorf("open %s: %w: need %.2f, have %.2f",
			req.Symbol, ErrInsufficientBalance, collateral, e.balance)
	}

	d := risk.CanOpen(e.accountBalanceLocked(), e.riskPositionsLocked(), req.Size, req.Price)
	if !d.Allowed {
		return &RejectionError{Code: d.Code, Reason: d.Reason, MaxSize: d.MaxSize}
	}

	e.balance -= collateral

	pos, ok := e.positions[req.Symbol]
	if !ok {
		pos = &Position{
			Symbol:     req.Symbol,
			Side:       req.Side.PositionSide(),
			Size:       req.Size,
			EntryPrice: req.Price,
			Leverage:   req.Leverage,
			Collateral: collateral,
			OpenTime:   now,
		}
		e.positions[req.Symbol] = pos
		e.recordEventLocked(journal.Event{
			Time: now, Action: journal.ActionOpen,
			Symbol: pos.Symbol, Side: pos.Side, Size: pos.Size, Price: pos.EntryPrice,
			Reason:  market.ReasonManual,
			Details: fmt.Sprintf("leverage=%.2f collateral=%.2f", pos.Leverage, pos.Collateral),
		})
	} else {
		newSize := pos.Size + req.Size
		pos.EntryPrice = (pos.Size*pos.EntryPrice + req.Size*req.Price) / newSize
		pos.Size = newSize
		pos.Collateral += collateral
		pos.Leverage = pos.Notional() / pos.Collateral
		e.recordEventLocked(journal.Event{
			Time: now, Action: journal.ActionOpen,
			Symbol: pos.Symbol, Side: pos.Side, Size: req.Size, Price: req.Price,
			Reason:  market.ReasonManual,
			Details: fmt.Sprintf("grow to %.6f avg_entry=%.2f", pos.Size, pos.EntryPrice),
		})
	}

	pos.markLocked(req.Price)
	e.refreshLiquidationsLocked()
	return nil
}

// reduceLocked closes part of a position, returning the proportional
// collateral plus the realized profit and loss on the closed slice.
func (e *Engine) reduceLocked(pos *Position, size, price float64, now time.Time) *CloseResult {
	fraction := size / pos.Size
	returned := pos.Collateral * fraction
	realized := (price - pos.EntryPrice) * pos.Side.Mult() * size

	pos.Size -= size
	pos.Collateral -= returned
	e.balance += returned + realized

	pos.markLocked(price)
	e.refreshLiquidationsLocked()

	e.recordEventLocked(journal.Event{
		Time: now, Action: journal.ActionPartialClose,
		Symbol: pos.Symbol, Side: pos.Side, Size: size, Price: price,
		Reason:  market.ReasonManual,
		Details: fmt.Sprintf("pnl=%.2f remaining=%.6f", realized, pos.Size),
	})

	return &CloseResult{
		Symbol: pos.Symbol, Side: pos.Side, Size: size,
		EntryPrice: pos.EntryPrice, ClosePrice: price,
		Reason: market.ReasonManual, RealizedPnL: realized, CloseTime: now,
	}
}

// closePositionLocked removes the position entirely, crediting collateral
// plus realized profit and loss.
func (e *Engine) closePositionLocked(pos *Position, price float64, reason string, now time.Time) *CloseResult {
	realized := (price - pos.EntryPrice) * pos.Side.Mult() * pos.Size
	e.balance += pos.Collateral + realized
	delete(e.positions, pos.Symbol)
	e.refreshLiquidationsLocked()

	e.recordEventLocked(journal.Event{
		Time: now, Action: journal.ActionClose,
		Symbol: pos.Symbol, Side: pos.Side, Size: pos.Size, Price: price,
		Reason:  reason,
		Details: fmt.Sprintf("pnl=%.2f", realized),
	})

	return &CloseResult{
		Symbol: pos.Symbol, Side: pos.Side, Size: pos.Size,
		EntryPrice: pos.EntryPrice, ClosePrice: price,
		Reason: reason, RealizedPnL: realized, CloseTime: now,
	}
}

// liquidateLocked force-closes a position at its liquidation price. The
// mark-to-market loss stays with the position: only the collateral net of
// the liquidation fee comes back to the balance, never a realized PnL.
func (e *Engine) liquidateLocked(pos *Position, now time.Time) *CloseResult {
	fee := pos.Collateral * e.liqFee
	returned := pos.Collateral - fee
	e.balance += returned
	delete(e.positions, pos.Symbol)
	e.refreshLiquidationsLocked()

	e.recordEventLocked(journal.Event{
		Time: now, Action: journal.ActionClose,
		Symbol: pos.Symbol, Side: pos.Side, Size: pos.Size, Price: pos.LiquidationPrice,
		Reason:  market.ReasonLiquidation,
		Details: fmt.Sprintf("collateral_returned=%.2f fee=%.2f", returned, fee),
	})

	return &CloseResult{
		Symbol: pos.Symbol, Side: pos.Side, Size: pos.Size,
		EntryPrice: pos.EntryPrice, ClosePrice: pos.LiquidationPrice,
		Reason: market.ReasonLiquidation, RealizedPnL: returned - pos.Collateral,
		Fee: fee, CloseTime: now,
	}
}

// reverseLocked flips a position: the whole existing position closes at
// the order price, and the remainder opens on the opposite side. The
// remainder is gated upfront so a reversal never half-executes.
func (e *Engine) reverseLocked(pos *Position, req OrderRequest, now time.Time) error {
	remainder := req.Size - pos.Size

	// Funds check against the post-close balance.
	realized := (req.Price - pos.EntryPrice) * pos.Side.Mult() * pos.Size
	afterClose := e.balance + pos.Collateral + realized
	collateral := margin.InitialMargin(remainder, req.Price, req.Leverage)
	if collateral > afterClose {
		return fmt.Errorf("reverse %s: %w: need %.2f, have %.2f after close",
			req.Symbol, ErrInsufficientBalance, collateral, afterClose)
	}

	existing := e.riskPositionsLocked(pos.Symbol)
	d := risk.CanOpen(afterClose, existing, remainder, req.Price)
	if !d.Allowed {
		return &RejectionError{Code: d.Code, Reason: d.Reason, MaxSize: d.MaxSize}
	}

	e.closePositionLocked(pos, req.Price, market.ReasonManual, now)

	e.balance -= collateral
	np := &Position{
		Symbol:     req.Symbol,
		Side:       req.Side.PositionSide(),
		Size:       remainder,
		EntryPrice: req.Price,
		Leverage:   req.Leverage,
		Collateral: collateral,
		OpenTime:   now,
	}
	e.positions[req.Symbol] = np
	np.markLocked(req.Price)
	e.refreshLiquidationsLocked()

	e.recordEventLocked(journal.Event{
		Time: now, Action: journal.ActionReversal,
		Symbol: np.Symbol, Side: np.Side, Size: np.Size, Price: np.EntryPrice,
		Reason:  market.ReasonManual,
		Details: fmt.Sprintf("closed %.6f %s, opened %.6f %s", pos.Size, pos.Side, np.Size, np.Side),
	})
	return nil
}

// UpdatePrice marks one symbol to a new price and runs the protective
// checks in priority order: liquidation first, then the trailing stop,
// stop loss and take profit. It returns the close that happened, if any.
// An unknown symbol is a no-op, not an error.
func (e *Engine) UpdatePrice(symbol string, price float64) (*CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if price <= 0 {
		return nil, fmt.Errorf("update price %s: %w: price %.2f", symbol, ErrInvalidOrder, price)
	}

	pos, ok := e.positions[symbol]
	if !ok {
		return nil, nil
	}

	now := time.Now()
	pos.markLocked(price)

	if pos.liquidated(price) {
		res := e.liquidateLocked(pos, now)
		e.snapshotLocked(now)
		return res, nil
	}

	r := trigger.Evaluate(pos.Side, price, pos.UnrealizedPnL, pos.Collateral, &pos.Stops)
	if r.Activated {
		e.recordEventLocked(journal.Event{
			Time: now, Action: journal.ActionTrailingActivated,
			Symbol: pos.Symbol, Side: pos.Side, Size: pos.Size, Price: price,
			Details: fmt.Sprintf("trailing_stop=%.2f", *pos.Stops.TrailingStop),
		})
		return nil, nil
	}
	if r.Fired {
		res := e.closePositionLocked(pos, price, r.Reason, now)
		e.snapshotLocked(now)
		return res, nil
	}

	return nil, nil
}

// ClosePosition closes the whole position at the given price.
func (e *Engine) ClosePosition(symbol string, price float64, reason string) (*CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("close %s: %w", symbol, ErrPositionNotFound)
	}
	if reason == "" {
		reason = market.ReasonManual
	}

	now := time.Now()
	res := e.closePositionLocked(pos, price, reason, now)
	e.snapshotLocked(now)
	return res, nil
}

// CancelOrder cancels a resting order. Filled and cancelled orders are
// terminal.
func (e *Engine) CancelOrder(orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel %s: %w", orderID, ErrOrderNotFound)
	}
	if o.Status != market.OrderOpen {
		return fmt.Errorf("cancel %s: %w: status %s", orderID, ErrInvalidOrder, o.Status)
	}
	o.Status = market.OrderCancelled
	o.Reason = "cancelled"
	return nil
}

// SetStopLoss sets or, with nil, removes the stop loss on a position.
func (e *Engine) SetStopLoss(symbol string, price *float64) error {
	return e.setStop(symbol, func(s *trigger.Stops) { s.StopLoss = price })
}

// SetTakeProfit sets or, with nil, removes the take profit on a position.
func (e *Engine) SetTakeProfit(symbol string, price *float64) error {
	return e.setStop(symbol, func(s *trigger.Stops) { s.TakeProfit = price })
}

// SetTrailingStop configures or, with nils, removes the trailing stop.
// Removing it also discards any activation state.
func (e *Engine) SetTrailingStop(symbol string, pct, activationPct *float64) error {
	return e.setStop(symbol, func(s *trigger.Stops) {
		s.TrailingPct = pct
		s.TrailingActivationPct = activationPct
		if pct == nil || activationPct == nil {
			s.TrailingActive = false
			s.TrailingStop = nil
		}
	})
}

func (e *Engine) setStop(symbol string, apply func(*trigger.Stops)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[symbol]
	if !ok {
		return fmt.Errorf("set stop %s: %w", symbol, ErrPositionNotFound)
	}
	apply(&pos.Stops)
	return nil
}

// GetPosition returns a copy of the position for symbol.
func (e *Engine) GetPosition(symbol string) (Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions, sorted by symbol.
func (e *Engine) Positions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// GetOrder returns a copy of the order record.
func (e *Engine) GetOrder(orderID string) (Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Balance is the free cash balance, excluding locked collateral.
func (e *Engine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// Equity is the free balance plus the collateral and unrealized profit
// and loss of every open position.
func (e *Engine) Equity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.equityLocked()
}

func (e *Engine) equityLocked() float64 {
	eq := e.balance
	for _, p := range e.positions {
		eq += p.Collateral + p.UnrealizedPnL
	}
	return eq
}

// accountBalanceLocked is the capital admission control measures exposure
// against: free balance plus locked collateral.
func (e *Engine) accountBalanceLocked() float64 {
	b := e.balance
	for _, p := range e.positions {
		b += p.Collateral
	}
	return b
}

// riskPositionsLocked converts open positions to the assessor's view,
// skipping the given symbols.
func (e *Engine) riskPositionsLocked(skip ...string) []risk.Position {
	var out []risk.Position
	for _, p := range e.positions {
		skipped := false
		for _, s := range skip {
			if p.Symbol == s {
				skipped = true
				break
			}
		}
		if skipped {
			continue
		}
		out = append(out, risk.Position{
			Symbol: p.Symbol, Side: p.Side, Size: p.Size,
			EntryPrice: p.EntryPrice, Leverage: p.Leverage,
		})
	}
	return out
}

// refreshLiquidationsLocked recomputes every liquidation price. The free
// balance backs all positions, so any balance change moves them all.
func (e *Engine) refreshLiquidationsLocked() {
	for _, p := range e.positions {
		p.LiquidationPrice = margin.LiquidationPrice(p.EntryPrice, p.Size, p.Side, e.balance+p.Collateral)
	}
}

func (e *Engine) recordEventLocked(ev journal.Event) {
	// Journal failures must not corrupt the ledger mid-mutation; the
	// trail is best-effort once the state change is committed.
	_ = e.journal.RecordEvent(ev)
}

func (e *Engine) snapshotLocked(now time.Time) {
	var collateral, upnl float64
	for _, p := range e.positions {
		collateral += p.Collateral
		upnl += p.UnrealizedPnL
	}
	_ = e.journal.RecordEquity(journal.Snapshot{
		Time:          now,
		Balance:       e.balance,
		Equity:        e.equityLocked(),
		Collateral:    collateral,
		UnrealizedPnL: upnl,
	})
}
