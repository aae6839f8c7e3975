package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "A margin-trading paper engine with tiered liquidation math",
	Long: `Papertrader simulates leveraged positions against a virtual balance.

It provides tools for:
  - Opening, growing, reducing and reversing leveraged paper positions
  - Tiered maintenance-margin and liquidation-price math
  - Risk classification and admission control before orders fill
  - Stop loss, take profit and trailing stops with liquidation priority
  - A live position monitor that polls prices and emits close requests
  - CSV and SQLite journals of every event and equity snapshot`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
