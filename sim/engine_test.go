package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsim/papertrader/journal"
	"github.com/marketsim/papertrader/market"
)

func fp(v float64) *float64 { return &v }

func marketBuy(symbol string, size, price, leverage float64) OrderRequest {
	return OrderRequest{
		Symbol:   symbol,
		Side:     market.Buy,
		Type:     market.MarketOrder,
		Size:     size,
		Price:    price,
		Leverage: leverage,
	}
}

func marketSell(symbol string, size, price, leverage float64) OrderRequest {
	r := marketBuy(symbol, size, price, leverage)
	r.Side = market.Sell
	return r
}

func TestOpenLocksCollateral(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)

	o, err := e.PlaceOrder(marketBuy("BTC", 0.1, 50_000, 10))
	require.NoError(t, err)
	assert.Equal(t, market.OrderFilled, o.Status)

	// 0.1 * 50000 / 10 = 500 collateral locked.
	assert.InDelta(t, 9_500.0, e.Balance(), 1e-9)
	assert.InDelta(t, 10_000.0, e.Equity(), 1e-9)

	pos, ok := e.GetPosition("BTC")
	require.True(t, ok)
	assert.Equal(t, market.Long, pos.Side)
	assert.InDelta(t, 500.0, pos.Collateral, 1e-9)
	// The whole account backs a small position: the backstop pushes the
	// liquidation level below zero, which clamps to "cannot liquidate".
	assert.Zero(t, pos.LiquidationPrice)
}

func TestCloseAtProfitConservesFunds(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.PlaceOrder(marketBuy("BTC", 0.1, 50_000, 10))
	require.NoError(t, err)

	_, err = e.UpdatePrice("BTC", 52_000)
	require.NoError(t, err)

	pos, ok := e.GetPosition("BTC")
	require.True(t, ok)
	assert.InDelta(t, 200.0, pos.UnrealizedPnL, 1e-9)

	res, err := e.ClosePosition("BTC", 52_000, "")
	require.NoError(t, err)
	assert.InDelta(t, 200.0, res.RealizedPnL, 1e-9)
	assert.Equal(t, market.ReasonManual, res.Reason)

	// Collateral returned plus the gain; nothing created or destroyed.
	assert.InDelta(t, 10_200.0, e.Balance(), 1e-9)
	assert.InDelta(t, e.Balance(), e.Equity(), 1e-9)

	_, ok = e.GetPosition("BTC")
	assert.False(t, ok)
}

func TestCloseAtEntryIsLossless(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.PlaceOrder(marketBuy("ETH", 2, 3_000, 5))
	require.NoError(t, err)

	_, err = e.ClosePosition("ETH", 3_000, "")
	require.NoError(t, err)

	assert.InDelta(t, 10_000.0, e.Balance(), 1e-9)
}

func TestGrowAveragesEntry(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.PlaceOrder(marketBuy("BTC", 0.1, 50_000, 10))
	require.NoError(t, err)
	_, err = e.PlaceOrder(marketBuy("BTC", 0.1, 52_000, 10))
	require.NoError(t, err)

	pos, ok := e.GetPosition("BTC")
	require.True(t, ok)
	assert.InDelta(t, 0.2, pos.Size, 1e-12)
	assert.InDelta(t, 51_000.0, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 1_020.0, pos.Collateral, 1e-9)
}

func TestPartialClose(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.PlaceOrder(marketBuy("BTC", 0.2, 50_000, 10))
	require.NoError(t, err)

	// Selling half closes half: proportional collateral plus pnl return.
	_, err = e.PlaceOrder(marketSell("BTC", 0.1, 52_000, 10))
	require.NoError(t, err)

	pos, ok := e.GetPosition("BTC")
	require.True(t, ok)
	assert.InDelta(t, 0.1, pos.Size, 1e-12)
	assert.InDelta(t, 500.0, pos.Collateral, 1e-9)
	assert.InDelta(t, 50_000.0, pos.EntryPrice, 1e-9, "entry price unchanged by a reduce")

	// 10000 - 1000 collateral + 500 returned + 200 pnl.
	assert.InDelta(t, 9_700.0, e.Balance(), 1e-9)
}

func TestOppositeOrderOfEqualSizeCloses(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.PlaceOrder(marketBuy("BTC", 0.1, 50_000, 10))
	require.NoError(t, err)

	_, err = e.PlaceOrder(marketSell("BTC", 0.1, 51_000, 10))
	require.NoError(t, err)

	_, ok := e.GetPosition("BTC")
	assert.False(t, ok)
	assert.InDelta(t, 10_100.0, e.Balance(), 1e-9)
}

func TestReversalFlipsSide(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.PlaceOrder(marketBuy("BTC", 0.1, 50_000, 10))
	require.NoError(t, err)

	_, err = e.PlaceOrder(marketSell("BTC", 0.3, 50_000, 10))
	require.NoError(t, err)

	pos, ok := e.GetPosition("BTC")
	require.True(t, ok)
	assert.Equal(t, market.Short, pos.Side)
	assert.InDelta(t, 0.2, pos.Size, 1e-12)
	assert.InDelta(t, 50_000.0, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 1_000.0, pos.Collateral, 1e-9)

	assert.InDelta(t, 9_000.0, e.Balance(), 1e-9)
	assert.InDelta(t, 10_000.0, e.Equity(), 1e-9)
}

func TestRejectsUnfundableOrder(t *testing.T) {
	t.Parallel()

	e := NewEngine(1_000, nil)

	// 0.4 * 50000 / 10 = 2000 collateral against a 1000 balance.
	o, err := e.PlaceOrder(marketBuy("BTC", 0.4, 50_000, 10))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, market.OrderCancelled, o.Status)
	assert.NotEmpty(t, o.Reason)

	// Ledger untouched.
	assert.InDelta(t, 1_000.0, e.Balance(), 1e-9)
	assert.Empty(t, e.Positions())
}

func TestRejectsExcessiveLeverage(t *testing.T) {
	t.Parallel()

	e := NewEngine(1_000, nil)

	// Collateral fits (exactly 1000) but effective leverage is 20x.
	o, err := e.PlaceOrder(marketBuy("BTC", 0.4, 50_000, 20))
	require.Error(t, err)

	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "EXCESSIVE_LEVERAGE", rej.Code)
	assert.Greater(t, rej.MaxSize, 0.0)
	assert.Equal(t, market.OrderCancelled, o.Status)
}

func TestRejectsZeroSize(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.PlaceOrder(marketBuy("BTC", 0, 50_000, 10))
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestLiquidationBeatsTakeProfit(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.PlaceOrder(marketBuy("BTC", 1, 50_000, 10))
	require.NoError(t, err)

	pos, _ := e.GetPosition("BTC")
	assert.InDelta(t, 44_949.49, pos.LiquidationPrice, 0.01)

	// A take profit below the liquidation price: one tick can satisfy
	// both, and liquidation must win.
	require.NoError(t, e.SetTakeProfit("BTC", fp(44_000)))

	res, err := e.UpdatePrice("BTC", 44_500)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, market.ReasonLiquidation, res.Reason)
	assert.InDelta(t, pos.LiquidationPrice, res.ClosePrice, 0.01, "closes at the liquidation price, not the tick")

	// 1% of the 5000 collateral.
	assert.InDelta(t, 50.0, res.Fee, 1e-9)
	assert.InDelta(t, 9_950.0, e.Balance(), 1e-6)
}

func TestLiquidationReturnsCollateralNetOfFee(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.PlaceOrder(marketBuy("BTC", 1, 50_000, 10))
	require.NoError(t, err)

	res, err := e.UpdatePrice("BTC", 44_000)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, market.ReasonLiquidation, res.Reason)
	assert.InDelta(t, 44_949.49, res.ClosePrice, 0.01)

	// The mark-to-market loss is not realized against the balance: the
	// position forfeits its collateral and gets back 5000 * 0.99.
	assert.InDelta(t, 9_950.0, e.Balance(), 1e-6)
	assert.InDelta(t, -50.0, res.RealizedPnL, 1e-9)
	assert.InDelta(t, 50.0, res.Fee, 1e-9)
}

func TestShortLiquidatesOnRally(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.PlaceOrder(marketSell("BTC", 1, 50_000, 10))
	require.NoError(t, err)

	pos, _ := e.GetPosition("BTC")
	assert.Greater(t, pos.LiquidationPrice, 50_000.0)

	res, err := e.UpdatePrice("BTC", pos.LiquidationPrice+1)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, market.ReasonLiquidation, res.Reason)
}

func TestStopLossFiresAndRemovalDisarms(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.PlaceOrder(marketBuy("BTC", 0.1, 50_000, 10))
	require.NoError(t, err)

	require.NoError(t, e.SetStopLoss("BTC", fp(49_000)))

	// Removing the stop must disarm it before the price crosses.
	require.NoError(t, e.SetStopLoss("BTC", nil))

	res, err := e.UpdatePrice("BTC", 48_500)
	require.NoError(t, err)
	assert.Nil(t, res, "removed stop loss must not fire")

	// Re-arm and cross.
	require.NoError(t, e.SetStopLoss("BTC", fp(49_000)))
	res, err = e.UpdatePrice("BTC", 48_900)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, market.ReasonStopLoss, res.Reason)
}

func TestTrailingStopThroughLedger(t *testing.T) {
	t.Parallel()

	mem := journal.NewMemory()
	e := NewEngine(10_000, mem)
	_, err := e.PlaceOrder(marketBuy("BTC", 1, 50_000, 10))
	require.NoError(t, err)

	require.NoError(t, e.SetTrailingStop("BTC", fp(2), fp(5)))

	// 250 profit on 5000 collateral is exactly the 5% activation level.
	res, err := e.UpdatePrice("BTC", 50_250)
	require.NoError(t, err)
	assert.Nil(t, res, "activation tick must not close")

	pos, _ := e.GetPosition("BTC")
	require.True(t, pos.Stops.TrailingActive)
	assert.InDelta(t, 50_250*0.98, *pos.Stops.TrailingStop, 1e-6)

	var activated bool
	for _, ev := range mem.Events() {
		if ev.Action == journal.ActionTrailingActivated {
			activated = true
		}
	}
	assert.True(t, activated, "activation must be journaled")

	// Retreat below the trail fires the stop.
	res, err = e.UpdatePrice("BTC", 49_000)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, market.ReasonTrailingStop, res.Reason)
}

func TestUpdatePriceUnknownSymbolIsNoop(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	res, err := e.UpdatePrice("DOGE", 0.1)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestClosePositionNotFound(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)
	_, err := e.ClosePosition("BTC", 50_000, "")
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestCancelOrderLifecycle(t *testing.T) {
	t.Parallel()

	e := NewEngine(10_000, nil)

	limit := marketBuy("BTC", 0.1, 48_000, 10)
	limit.Type = market.LimitOrder
	o, err := e.PlaceOrder(limit)
	require.NoError(t, err)
	assert.Equal(t, market.OrderOpen, o.Status)

	require.NoError(t, e.CancelOrder(o.ID))
	got, ok := e.GetOrder(o.ID)
	require.True(t, ok)
	assert.Equal(t, market.OrderCancelled, got.Status)
	assert.Zero(t, got.Filled)

	// Terminal states cannot be cancelled again.
	assert.ErrorIs(t, e.CancelOrder(o.ID), ErrInvalidOrder)
	assert.ErrorIs(t, e.CancelOrder("missing"), ErrOrderNotFound)

	filled, err := e.PlaceOrder(marketBuy("BTC", 0.1, 50_000, 10))
	require.NoError(t, err)
	assert.InDelta(t, 0.1, filled.Filled, 1e-12)
	assert.ErrorIs(t, e.CancelOrder(filled.ID), ErrInvalidOrder)
}

func TestPositionsSortedBySymbol(t *testing.T) {
	t.Parallel()

	e := NewEngine(100_000, nil)
	for _, sym := range []string{"SOL", "BTC", "ETH"} {
		_, err := e.PlaceOrder(marketBuy(sym, 0.1, 1_000, 5))
		require.NoError(t, err)
	}

	got := e.Positions()
	require.Len(t, got, 3)
	assert.Equal(t, "BTC", got[0].Symbol)
	assert.Equal(t, "ETH", got[1].Symbol)
	assert.Equal(t, "SOL", got[2].Symbol)
}

func TestJournalRecordsLifecycle(t *testing.T) {
	t.Parallel()

	mem := journal.NewMemory()
	e := NewEngine(10_000, mem)

	_, err := e.PlaceOrder(marketBuy("BTC", 0.2, 50_000, 10))
	require.NoError(t, err)
	_, err = e.PlaceOrder(marketSell("BTC", 0.1, 51_000, 10))
	require.NoError(t, err)
	_, err = e.ClosePosition("BTC", 51_000, "")
	require.NoError(t, err)

	var actions []string
	for _, ev := range mem.Events() {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{
		journal.ActionOpen,
		journal.ActionPartialClose,
		journal.ActionClose,
	}, actions)

	assert.NotEmpty(t, mem.Snapshots())
	last := mem.Snapshots()[len(mem.Snapshots())-1]
	assert.InDelta(t, e.Balance(), last.Balance, 1e-9)
	assert.InDelta(t, e.Equity(), last.Equity, 1e-9)
}
