package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var summaryTimeframe string

var summaryCmd = &cobra.Command{
	Use:   "summary <symbol>",
	Short: "Show latest price and trailing 24h statistics for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tf, err := parseTimeframe(summaryTimeframe)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		s, err := a.renderer.Summary(cmd.Context(), args[0], tf)
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s)\n", s.Symbol, s.Timeframe)
		fmt.Printf("  rows:        %d\n", s.Rows)
		fmt.Printf("  range:       %s .. %s\n",
			s.First.Format("2006-01-02 15:04"), s.Last.Format("2006-01-02 15:04"))
		fmt.Printf("  last close:  %s\n", s.LatestClose)
		fmt.Printf("  avg volume:  %s\n", s.AvgVolume)
		if s.High24h != "" {
			fmt.Printf("  24h high:    %s\n", s.High24h)
			fmt.Printf("  24h low:     %s\n", s.Low24h)
			fmt.Printf("  24h volume:  %s\n", s.Volume24h)
			fmt.Printf("  24h change:  %s%%\n", s.Change24h)
		}
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringVarP(&summaryTimeframe, "timeframe", "t", "5m", "candle timeframe (5m, 15m, 1h, 4h, 1d)")
	rootCmd.AddCommand(summaryCmd)
}
