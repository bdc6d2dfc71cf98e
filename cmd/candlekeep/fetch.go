package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfeed/candlekeep/internal/errs"
)

var fetchMonths int

var fetchCmd = &cobra.Command{
	Use:   "fetch [symbols...]",
	Short: "Download full candle history and overwrite local datasets",
	Long: `Download the last N months of 5-minute candles for the given symbols
(all configured pairs when none are given) and overwrite each symbol's local
dataset. Use 'update' to extend existing datasets instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		symbols, err := a.resolveSymbols(args)
		if err != nil {
			return err
		}
		if err := a.okx.HealthCheck(cmd.Context()); err != nil {
			return fmt.Errorf("exchange unreachable: %w", err)
		}

		result := a.fetcher.FetchMultiple(cmd.Context(), symbols, fetchMonths)
		printOutcomes(result.Outcomes)
		fmt.Println(result.Summary())

		if len(result.Failed()) > 0 {
			return fmt.Errorf("%d symbol(s) failed", len(result.Failed()))
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().IntVarP(&fetchMonths, "months", "m", 12, "lookback window in months")
	rootCmd.AddCommand(fetchCmd)
}

// printOutcomes writes one line per symbol in stable order.
func printOutcomes(outcomes map[string]errs.SymbolOutcome) {
	symbols := make([]string, 0, len(outcomes))
	for symbol := range outcomes {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		o := outcomes[symbol]
		switch {
		case o.Skipped:
			fmt.Printf("  %-12s up to date\n", symbol)
		case o.Err != nil:
			fmt.Printf("  %-12s FAILED (%s): %v\n", symbol, o.Type, o.Err)
		default:
			fmt.Printf("  %-12s %d candles in %s\n", symbol, o.Rows, o.Duration.Round(time.Millisecond))
		}
	}
}
