package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantfeed/candlekeep/internal/errs"
)

var gapsCmd = &cobra.Command{
	Use:   "gaps [symbols...]",
	Short: "Audit stored datasets for missing 5-minute bars",
	Long: `Walk each symbol's stored series and report internal runs of missing
bars. Exchanges have maintenance windows, so a gap is informational rather
than an error, but it explains holes in resampled charts.`,
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
			gaps, err := a.updater.ScanGaps(cmd.Context(), symbol)
			switch {
			case errors.Is(err, errs.ErrNoLocalData):
				fmt.Printf("%s: no local data\n", symbol)
				continue
			case err != nil:
				fmt.Printf("%s: error: %v\n", symbol, err)
				continue
			case len(gaps) == 0:
				fmt.Printf("%s: contiguous, no gaps\n", symbol)
				continue
			}

			fmt.Printf("%s: %d gap(s)\n", symbol, len(gaps))
			for _, g := range gaps {
				fmt.Printf("  %s .. %s  %d missing bar(s) (%s)\n",
					g.Start.Format("2006-01-02 15:04"),
					g.End.Format("2006-01-02 15:04"),
					g.MissingBars, g.Duration())
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gapsCmd)
}
