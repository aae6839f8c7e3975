package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marketsim/papertrader/margin"
	"github.com/marketsim/papertrader/market"
	"github.com/marketsim/papertrader/risk"
)

var liqCmd = &cobra.Command{
	Use:   "liq",
	Short: "Compute liquidation price and risk for a hypothetical position",
	Long: `Compute the liquidation price, maintenance margin and risk level for a
position without opening it.

Example:
  papertrader liq --entry 50000 --size 1 --side long --balance 10000`,
	RunE: runLiq,
}

var (
	liqEntry   float64
	liqSize    float64
	liqSide    string
	liqBalance float64
	liqPrice   float64
)

func init() {
	rootCmd.AddCommand(liqCmd)

	liqCmd.Flags().Float64Var(&liqEntry, "entry", 0, "entry price (required)")
	liqCmd.Flags().Float64Var(&liqSize, "size", 0, "position size in units (required)")
	liqCmd.Flags().StringVar(&liqSide, "side", "long", "position side: long or short")
	liqCmd.Flags().Float64Var(&liqBalance, "balance", 0, "account balance backing the position (required)")
	liqCmd.Flags().Float64Var(&liqPrice, "price", 0, "current price (defaults to entry)")
	liqCmd.MarkFlagRequired("entry")
	liqCmd.MarkFlagRequired("size")
	liqCmd.MarkFlagRequired("balance")
}

func runLiq(cmd *cobra.Command, args []string) error {
	side := market.Long
	switch liqSide {
	case "long":
	case "short":
		side = market.Short
	default:
		return fmt.Errorf("side must be 'long' or 'short', got %q", liqSide)
	}

	price := liqPrice
	if price == 0 {
		price = liqEntry
	}

	a := risk.Assess(risk.Position{
		Symbol:     "POS",
		Side:       side,
		Size:       liqSize,
		EntryPrice: liqEntry,
	}, price, liqBalance)

	notional := liqSize * liqEntry
	maint, rate := margin.MaintenanceMargin(notional)

	fmt.Printf("Position: %s %.6f @ %.2f (notional %.2f)\n", side, liqSize, liqEntry, notional)
	fmt.Printf("  Maintenance margin: %.2f (rate %.2f%%)\n", maint, rate*100)
	if a.LiquidationPrice > 0 {
		fmt.Printf("  Liquidation price:  %.2f\n", a.LiquidationPrice)
		fmt.Printf("  Distance:           %.2f%% from %.2f\n", a.DistanceToLiquidationPct, price)
	} else {
		fmt.Println("  Liquidation price:  none (balance fully covers the position)")
	}
	fmt.Printf("  Risk level:         %s\n", a.Level)
	fmt.Printf("  Max safe add size:  %.6f @ %.2f\n", a.MaxSafePositionSize, price)

	return nil
}
