package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quantfeed/candlekeep/internal/charts"
	"github.com/quantfeed/candlekeep/internal/config"
	"github.com/quantfeed/candlekeep/internal/exchange"
	"github.com/quantfeed/candlekeep/internal/fetcher"
	"github.com/quantfeed/candlekeep/internal/logger"
	"github.com/quantfeed/candlekeep/internal/resample"
	"github.com/quantfeed/candlekeep/internal/storage"
	"github.com/quantfeed/candlekeep/internal/updater"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "candlekeep",
	Short: "Local archive of OKX 5-minute candle data",
	Long: `candlekeep downloads historical 5-minute candlestick data from OKX's
public REST API, stores one parquet file per trading pair, keeps the files
current with incremental updates, and renders candlestick, comparison, and
volume charts from the stored data.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "candlekeep.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// app bundles the wired components behind every command.
type app struct {
	cfg      *config.Config
	logs     *logger.Manager
	store    storage.DatasetStore
	okx      *exchange.OKXAdapter
	fetcher  *fetcher.Fetcher
	updater  *updater.Updater
	renderer *charts.Renderer
}

// newApp loads .env and the config file, then builds the component graph.
func newApp() (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logs, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewParquetStore(cfg.Storage.DataDir)
	if err != nil {
		logs.Close()
		return nil, err
	}

	okx := exchange.NewOKXAdapter(cfg.Exchange, logs.Component("exchange"))

	return &app{
		cfg:      cfg,
		logs:     logs,
		store:    store,
		okx:      okx,
		fetcher:  fetcher.New(okx, store, cfg, logs.Logger()),
		updater:  updater.New(okx, store, cfg, logs.Logger()),
		renderer: charts.NewRenderer(store, cfg, logs.Logger()),
	}, nil
}

func (a *app) close() {
	a.store.Close()
	a.logs.Close()
}

// resolveSymbols expands an empty argument list to every configured pair and
// validates explicit symbols against the configuration.
func (a *app) resolveSymbols(args []string) ([]string, error) {
	if len(args) == 0 {
		return a.cfg.Pairs, nil
	}
	for _, symbol := range args {
		if !a.cfg.SupportsPair(symbol) {
			return nil, fmt.Errorf("unsupported pair %q (configured: %s)",
				symbol, strings.Join(a.cfg.Pairs, ", "))
		}
	}
	return args, nil
}

// parseTimeframe is shared by the chart and summary commands.
func parseTimeframe(s string) (resample.Timeframe, error) {
	return resample.Parse(s)
}

// parseDateFlag parses an optional YYYY-MM-DD flag value; empty means unset.
func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}
