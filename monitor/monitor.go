// Package monitor watches live positions through a broker gateway: it
// polls prices, classifies liquidation risk, runs the protective-stop
// state machine, and emits close requests on a channel for the consumer
// to execute. It never places orders itself.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marketsim/papertrader/broker"
	"github.com/marketsim/papertrader/journal"
	"github.com/marketsim/papertrader/market"
	"github.com/marketsim/papertrader/risk"
	"github.com/marketsim/papertrader/trigger"
)

const (
	DefaultTriggerInterval = 3 * time.Second
	DefaultRefreshInterval = 5 * time.Second
	DefaultMaxFailures     = 3
	DefaultRateLimit       = rate.Limit(10)
)

// MonitoredPosition is the monitor's mirror of one live position plus the
// protective-stop state it maintains for it.
type MonitoredPosition struct {
	Symbol     string
	Side       market.Side
	Size       float64
	EntryPrice float64
	Leverage   float64

	Stops     trigger.Stops
	LastPrice float64
	LastLevel risk.Level
}

// Options tunes the monitor; zero values fall back to the defaults.
type Options struct {
	TriggerInterval time.Duration
	RefreshInterval time.Duration
	MaxFailures     int
	RateLimit       rate.Limit
}

// Monitor is the live position watcher. Start and Stop are idempotent;
// close requests are delivered on the Closes channel.
type Monitor struct {
	gateway broker.Gateway
	journal journal.Recorder
	log     *zap.Logger
	limiter *rate.Limiter
	opts    Options

	closes chan broker.CloseRequest

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	positions map[string]*mirrored
	failures  int
}

type mirrored struct {
	pos broker.LivePosition

	stops     trigger.Stops
	lastPrice float64
	lastLevel risk.Level
}

func New(gw broker.Gateway, rec journal.Recorder, log *zap.Logger, opts Options) *Monitor {
	if rec == nil {
		rec = journal.NewMemory()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TriggerInterval <= 0 {
		opts.TriggerInterval = DefaultTriggerInterval
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}

	return &Monitor{
		gateway:   gw,
		journal:   rec,
		log:       log,
		limiter:   rate.NewLimiter(opts.RateLimit, 1),
		opts:      opts,
		closes:    make(chan broker.CloseRequest, 16),
		positions: make(map[string]*mirrored),
	}
}

// Closes delivers the monitor's close requests. The channel stays open
// across restarts; consumers should select against their own shutdown
// signal.
func (m *Monitor) Closes() <-chan broker.CloseRequest {
	return m.closes
}

// Start begins the polling loops. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.failures = 0

	m.wg.Add(2)
	go m.triggerLoop(ctx)
	go m.refreshLoop(ctx)

	m.log.Info("monitor started",
		zap.Duration("trigger_interval", m.opts.TriggerInterval),
		zap.Duration("refresh_interval", m.opts.RefreshInterval))
}

// Stop halts the loops and releases the mirrored positions. Calling Stop
// on a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.positions = make(map[string]*mirrored)
	m.mu.Unlock()

	m.log.Info("monitor stopped")
}

// Running reports whether the polling loops are active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Positions returns a snapshot of the mirrored positions, sorted by
// symbol.
func (m *Monitor) Positions() []MonitoredPosition {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MonitoredPosition, 0, len(m.positions))
	for _, mp := range m.positions {
		out = append(out, MonitoredPosition{
			Symbol:     mp.pos.Symbol,
			Side:       mp.pos.Side,
			Size:       mp.pos.Size,
			EntryPrice: mp.pos.EntryPrice,
			Leverage:   mp.pos.Leverage,
			Stops:      mp.stops,
			LastPrice:  mp.lastPrice,
			LastLevel:  mp.lastLevel,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (m *Monitor) triggerLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.TriggerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollTriggers(ctx)
		}
	}
}

func (m *Monitor) refreshLoop(ctx context.Context) {
	defer m.wg.Done()

	// Populate the mirror before the first trigger poll.
	m.refresh(ctx)

	ticker := time.NewTicker(m.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

// pollTriggers walks the mirror in symbol order and runs the protective
// checks for each position at its latest price.
func (m *Monitor) pollTriggers(ctx context.Context) {
	for _, symbol := range m.symbols() {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}

		price, err := m.gateway.Price(ctx, symbol)
		if err != nil {
			if m.recordFailure(ctx, "price poll", err) {
				return
			}
			continue
		}
		m.recordSuccess()

		m.evaluate(ctx, symbol, price)
	}
}

// evaluate runs one position through the risk assessor and the stop state
// machine. Liquidation outranks every configured stop.
func (m *Monitor) evaluate(ctx context.Context, symbol string, price float64) {
	m.mu.Lock()
	mp, ok := m.positions[symbol]
	if !ok {
		m.mu.Unlock()
		return
	}

	mp.lastPrice = price
	pos := mp.pos

	// The gateway does not expose account balance; the collateral implied
	// by the position's own leverage backs the assessment.
	collateral := 0.0
	if pos.Leverage > 0 {
		collateral = pos.EntryPrice * pos.Size / pos.Leverage
	}

	a := risk.Assess(risk.Position{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Size:       pos.Size,
		EntryPrice: pos.EntryPrice,
		Leverage:   pos.Leverage,
	}, price, collateral)

	if a.Level != mp.lastLevel {
		mp.lastLevel = a.Level
		if a.Level >= risk.Danger {
			m.log.Warn("position near liquidation",
				zap.String("symbol", symbol),
				zap.String("level", a.Level.String()),
				zap.Float64("price", price),
				zap.Float64("liquidation_price", a.LiquidationPrice),
				zap.Float64("distance_pct", a.DistanceToLiquidationPct))
			_ = m.journal.RecordEvent(journal.Event{
				Time: time.Now(), Action: journal.ActionRiskWarning,
				Symbol: symbol, Side: pos.Side, Size: pos.Size, Price: price,
				Reason: a.Level.String(),
			})
		}
	}

	// Liquidating a live position is the exchange's job; the monitor only
	// warns about proximity and runs the configured stops.
	upnl := (price - pos.EntryPrice) * pos.Side.Mult() * pos.Size

	var req *broker.CloseRequest
	r := trigger.Evaluate(pos.Side, price, upnl, collateral, &mp.stops)
	if r.Activated {
		m.log.Info("trailing stop activated",
			zap.String("symbol", symbol),
			zap.Float64("trailing_stop", *mp.stops.TrailingStop))
		_ = m.journal.RecordEvent(journal.Event{
			Time: time.Now(), Action: journal.ActionTrailingActivated,
			Symbol: symbol, Side: pos.Side, Size: pos.Size, Price: price,
		})
	}
	if r.Fired {
		req = &broker.CloseRequest{
			Symbol: symbol, Side: pos.Side, Size: pos.Size,
			Price: price, Reason: r.Reason,
		}
	}

	if req == nil {
		m.mu.Unlock()
		return
	}

	delete(m.positions, symbol)
	m.mu.Unlock()

	m.log.Info("close requested",
		zap.String("symbol", req.Symbol),
		zap.String("reason", req.Reason),
		zap.Float64("price", req.Price))

	select {
	case m.closes <- *req:
	case <-ctx.Done():
	}
}

// refresh re-reads the open-position book from the gateway and merges it
// into the mirror, preserving trailing-stop state for symbols that are
// still open.
func (m *Monitor) refresh(ctx context.Context) {
	if err := m.limiter.Wait(ctx); err != nil {
		return
	}

	live, err := m.gateway.OpenPositions(ctx)
	if err != nil {
		m.recordFailure(ctx, "position refresh", err)
		return
	}
	m.recordSuccess()

	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]*mirrored, len(live))
	for _, lp := range live {
		mp, ok := m.positions[lp.Symbol]
		if !ok {
			mp = &mirrored{}
		}
		mp.pos = lp
		mp.stops.StopLoss = lp.StopLoss
		mp.stops.TakeProfit = lp.TakeProfit
		mp.stops.TrailingPct = lp.TrailingPct
		mp.stops.TrailingActivationPct = lp.TrailingActivationPct
		if lp.TrailingPct == nil || lp.TrailingActivationPct == nil {
			mp.stops.TrailingActive = false
			mp.stops.TrailingStop = nil
		}
		next[lp.Symbol] = mp
	}
	m.positions = next
}

// recordFailure counts a poll failure and stops the monitor when the
// failure is non-retryable or the consecutive-failure budget is spent.
// It reports whether the monitor is shutting down.
func (m *Monitor) recordFailure(ctx context.Context, op string, err error) bool {
	if ctx.Err() != nil {
		return true
	}

	m.mu.Lock()
	m.failures++
	failures := m.failures
	m.mu.Unlock()

	retryable := broker.Retryable(err)
	if retryable && failures < m.opts.MaxFailures {
		m.log.Warn("gateway error, will retry",
			zap.String("op", op),
			zap.Int("consecutive_failures", failures),
			zap.Error(err))
		return false
	}

	m.log.Error("stopping monitor",
		zap.String("op", op),
		zap.Bool("retryable", retryable),
		zap.Int("consecutive_failures", failures),
		zap.Error(err))

	// Stop from a fresh goroutine: Stop waits for the polling loops, and
	// this is one of them.
	go m.Stop()
	return true
}

func (m *Monitor) recordSuccess() {
	m.mu.Lock()
	m.failures = 0
	m.mu.Unlock()
}

func (m *Monitor) symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
