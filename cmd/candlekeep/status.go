package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfeed/candlekeep/internal/errs"
)

var statusCmd = &cobra.Command{
	Use:   "status [symbols...]",
	Short: "Show stored range and freshness for each dataset",
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

		for _, symbol := range symbols {
			status, err := a.updater.Status(cmd.Context(), symbol)
			switch {
			case errors.Is(err, errs.ErrNoLocalData):
				fmt.Printf("  %-12s no local data (run 'candlekeep fetch %s')\n", symbol, symbol)
			case err != nil:
				fmt.Printf("  %-12s error: %v\n", symbol, err)
			default:
				marker := "current"
				if status.NeedsUpdate {
					marker = "stale"
				}
				fmt.Printf("  %-12s %6d candles  %s .. %s  age %-10s %s\n",
					symbol, status.Rows,
					status.First.Format("2006-01-02 15:04"),
					status.Last.Format("2006-01-02 15:04"),
					status.Age.Round(time.Minute), marker)
			}
		}

		stats, err := a.store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("\n%d candles across %d symbols", stats.TotalCandles, len(stats.Symbols))
		if stats.StorageBytes > 0 {
			fmt.Printf(" (%.1f MiB on disk)", float64(stats.StorageBytes)/(1<<20))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
