package cmd

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marketsim/papertrader/broker/paper"
	"github.com/marketsim/papertrader/config"
	"github.com/marketsim/papertrader/internal/logger"
	"github.com/marketsim/papertrader/journal"
	"github.com/marketsim/papertrader/market"
	"github.com/marketsim/papertrader/monitor"
	"github.com/marketsim/papertrader/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open a paper position and walk it through a simulated price feed",
	Long: `Open a leveraged paper position and drive it with a random-walk price
feed while the live monitor watches for stops and liquidation.

Example:
  papertrader run --config examples/configs/basic.yaml --symbol BTC --size 0.5 --price 50000`,
	RunE: runRun,
}

var (
	runConfigPath  string
	runSymbol      string
	runSide        string
	runSize        float64
	runPrice       float64
	runLeverage    float64
	runSteps       int
	runStepDelay   time.Duration
	runStopLoss    float64
	runTakeProfit  float64
	runTrailPct    float64
	runTrailActPct float64
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
	runCmd.Flags().StringVar(&runSymbol, "symbol", "BTC", "symbol to trade")
	runCmd.Flags().StringVar(&runSide, "side", "long", "position side: long or short")
	runCmd.Flags().Float64Var(&runSize, "size", 0.1, "position size in units")
	runCmd.Flags().Float64Var(&runPrice, "price", 50_000, "starting price")
	runCmd.Flags().Float64Var(&runLeverage, "leverage", 10, "position leverage")
	runCmd.Flags().IntVar(&runSteps, "steps", 100, "number of price steps to simulate")
	runCmd.Flags().DurationVar(&runStepDelay, "step-delay", 100*time.Millisecond, "delay between price steps")
	runCmd.Flags().Float64Var(&runStopLoss, "stop-loss", 0, "stop loss price (0 disables)")
	runCmd.Flags().Float64Var(&runTakeProfit, "take-profit", 0, "take profit price (0 disables)")
	runCmd.Flags().Float64Var(&runTrailPct, "trailing-pct", 0, "trailing stop distance percent (0 disables)")
	runCmd.Flags().Float64Var(&runTrailActPct, "trailing-activation", 0, "trailing activation profit percent")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if runConfigPath != "" {
		loaded, err := config.LoadFromFile(runConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	log := logger.New(cfg.Log.Level)
	defer log.Sync()

	rec, err := newRecorder(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer rec.Close()

	engine := sim.NewEngine(cfg.Account.Balance, rec)
	engine.SetLiquidationFeeRate(cfg.Engine.LiquidationFeeRate)

	orderSide := market.Buy
	switch runSide {
	case "long":
	case "short":
		orderSide = market.Sell
	default:
		return fmt.Errorf("side must be 'long' or 'short', got %q", runSide)
	}

	o, err := engine.PlaceOrder(sim.OrderRequest{
		Symbol:   runSymbol,
		Side:     orderSide,
		Type:     market.MarketOrder,
		Size:     runSize,
		Price:    runPrice,
		Leverage: runLeverage,
	})
	if err != nil {
		return fmt.Errorf("open position: %w", err)
	}
	log.Info("position opened",
		zap.String("order_id", o.ID),
		zap.String("symbol", runSymbol),
		zap.String("side", runSide),
		zap.Float64("size", runSize),
		zap.Float64("price", runPrice))

	if err := applyStops(engine); err != nil {
		return err
	}

	gateway := paper.New(engine)
	gateway.SetPrice(runSymbol, runPrice)

	triggerInterval, _ := cfg.Monitor.TriggerIntervalDuration()
	refreshInterval, _ := cfg.Monitor.RefreshIntervalDuration()
	mon := monitor.New(gateway, rec, log, monitor.Options{
		TriggerInterval: triggerInterval,
		RefreshInterval: refreshInterval,
		MaxFailures:     cfg.Monitor.MaxFailures,
		RateLimit:       rate.Limit(cfg.Monitor.RateLimit),
	})
	mon.Start()
	defer mon.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case req := <-mon.Closes():
				_, err := engine.ClosePosition(req.Symbol, req.Price, req.Reason)
				if err != nil && !errors.Is(err, sim.ErrPositionNotFound) {
					log.Error("close request failed", zap.String("symbol", req.Symbol), zap.Error(err))
				}
			case <-cmd.Context().Done():
				return
			}
		}
	}()

	price := runPrice
	for i := 0; i < runSteps; i++ {
		price *= 1 + rand.NormFloat64()*0.002
		gateway.SetPrice(runSymbol, price)

		res, err := engine.UpdatePrice(runSymbol, price)
		if err != nil {
			return fmt.Errorf("update price: %w", err)
		}
		if res != nil {
			log.Info("position closed",
				zap.String("reason", res.Reason),
				zap.Float64("price", res.ClosePrice),
				zap.Float64("pnl", res.RealizedPnL))
			break
		}
		if _, open := engine.GetPosition(runSymbol); !open {
			break
		}

		time.Sleep(runStepDelay)
	}

	if _, open := engine.GetPosition(runSymbol); open {
		if _, err := engine.ClosePosition(runSymbol, price, ""); err != nil {
			return fmt.Errorf("final close: %w", err)
		}
	}

	fmt.Printf("\nFinal Results:\n")
	fmt.Printf("  Balance: $%.2f\n", engine.Balance())
	fmt.Printf("  Profit/Loss: $%.2f\n", engine.Balance()-cfg.Account.Balance)
	return nil
}

func applyStops(engine *sim.Engine) error {
	if runStopLoss > 0 {
		if err := engine.SetStopLoss(runSymbol, &runStopLoss); err != nil {
			return err
		}
	}
	if runTakeProfit > 0 {
		if err := engine.SetTakeProfit(runSymbol, &runTakeProfit); err != nil {
			return err
		}
	}
	if runTrailPct > 0 && runTrailActPct > 0 {
		if err := engine.SetTrailingStop(runSymbol, &runTrailPct, &runTrailActPct); err != nil {
			return err
		}
	}
	return nil
}

func newRecorder(cfg config.JournalConfig) (journal.Recorder, error) {
	switch cfg.Type {
	case "csv":
		return journal.NewCSV(cfg.EventsFile, cfg.EquityFile)
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	default:
		return journal.NewMemory(), nil
	}
}
