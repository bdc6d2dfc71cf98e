package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfeed/candlekeep/internal/charts"
	"github.com/quantfeed/candlekeep/internal/resample"
)

var (
	chartTimeframe string
	chartFrom      string
	chartTo        string
	chartNormalize bool
	chartShowRSI   bool
	chartShowATR   bool
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render HTML charts from stored candle data",
}

var chartKlineCmd = &cobra.Command{
	Use:   "kline <symbol>",
	Short: "Candlestick chart with moving-average overlays and volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, tf, from, to, err := chartSetup()
		if err != nil {
			return err
		}
		defer a.close()

		panels := charts.KlineOptions{ShowRSI: chartShowRSI, ShowATR: chartShowATR}
		path, err := a.renderer.Candlestick(cmd.Context(), args[0], tf, from, to, panels)
		if err != nil {
			return err
		}
		fmt.Println("wrote", path)
		return nil
	},
}

var chartCompareCmd = &cobra.Command{
	Use:   "compare <symbol> <symbol> [symbols...]",
	Short: "Close-price comparison lines, optionally normalized to 100",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, tf, from, to, err := chartSetup()
		if err != nil {
			return err
		}
		defer a.close()

		path, err := a.renderer.Comparison(cmd.Context(), args, tf, from, to, chartNormalize)
		if err != nil {
			return err
		}
		fmt.Println("wrote", path)
		return nil
	},
}

var chartVolumeCmd = &cobra.Command{
	Use:   "volume <symbol>",
	Short: "Per-bucket volume bar chart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, tf, from, to, err := chartSetup()
		if err != nil {
			return err
		}
		defer a.close()

		path, err := a.renderer.Volume(cmd.Context(), args[0], tf, from, to)
		if err != nil {
			return err
		}
		fmt.Println("wrote", path)
		return nil
	},
}

// chartSetup builds the app and parses the shared chart flags.
func chartSetup() (*app, resample.Timeframe, time.Time, time.Time, error) {
	tf, err := parseTimeframe(chartTimeframe)
	if err != nil {
		return nil, tf, time.Time{}, time.Time{}, err
	}
	from, err := parseDateFlag(chartFrom)
	if err != nil {
		return nil, tf, time.Time{}, time.Time{}, err
	}
	to, err := parseDateFlag(chartTo)
	if err != nil {
		return nil, tf, time.Time{}, time.Time{}, err
	}

	a, err := newApp()
	if err != nil {
		return nil, tf, time.Time{}, time.Time{}, err
	}
	return a, tf, from, to, nil
}

func init() {
	chartCmd.PersistentFlags().StringVarP(&chartTimeframe, "timeframe", "t", "1h", "candle timeframe (5m, 15m, 1h, 4h, 1d)")
	chartCmd.PersistentFlags().StringVar(&chartFrom, "from", "", "range start, YYYY-MM-DD (default: all data)")
	chartCmd.PersistentFlags().StringVar(&chartTo, "to", "", "range end, YYYY-MM-DD (default: all data)")
	chartCompareCmd.Flags().BoolVar(&chartNormalize, "normalize", true, "rebase every series to 100 at its first point")
	chartKlineCmd.Flags().BoolVar(&chartShowRSI, "rsi", false, "add an RSI(14) panel under the chart")
	chartKlineCmd.Flags().BoolVar(&chartShowATR, "atr", false, "add an ATR(14) panel under the chart")

	chartCmd.AddCommand(chartKlineCmd, chartCompareCmd, chartVolumeCmd)
	rootCmd.AddCommand(chartCmd)
}
