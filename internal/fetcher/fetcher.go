// Package fetcher implements the full historical download stage: page a
// symbol's 5-minute candles back over a lookback window and write the dataset,
// replacing whatever was stored before. Incremental extension of an existing
// dataset lives in the updater package.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfeed/candlekeep/internal/config"
	"github.com/quantfeed/candlekeep/internal/errs"
	"github.com/quantfeed/candlekeep/internal/exchange"
	"github.com/quantfeed/candlekeep/internal/logger"
	"github.com/quantfeed/candlekeep/internal/models"
	"github.com/quantfeed/candlekeep/internal/storage"
)

// Fetcher downloads historical candle data and persists it.
type Fetcher struct {
	exchange exchange.CandleFetcher
	store    storage.DatasetStore
	cfg      *config.Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Fetcher.
func New(ex exchange.CandleFetcher, store storage.DatasetStore, cfg *config.Config, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		exchange: ex,
		store:    store,
		cfg:      cfg,
		logger:   log.With(slog.String("component", "fetcher")),
		now:      time.Now,
	}
}

// FetchAndSave downloads the last `months` months of base-interval candles for
// a symbol and overwrites its dataset. Returns the number of candles stored.
func (f *Fetcher) FetchAndSave(ctx context.Context, symbol string, months int) (int, error) {
	if months <= 0 {
		return 0, fmt.Errorf("months must be greater than 0, got %d", months)
	}
	if !f.cfg.SupportsPair(symbol) {
		return 0, fmt.Errorf("%w: %s", errs.ErrUnsupportedPair, symbol)
	}

	end := f.now().UTC().Truncate(models.BaseIntervalDuration)
	start := end.AddDate(0, -months, 0)

	f.logger.Info("starting full fetch",
		slog.String("symbol", symbol),
		slog.Int("months", months),
		slog.Time("start", start),
		slog.Time("end", end))

	resp, err := f.exchange.FetchCandles(ctx, exchange.FetchRequest{
		Pair:     symbol,
		Start:    start,
		End:      end,
		Interval: models.BaseInterval,
	})
	if err != nil {
		return 0, errs.Classify(fmt.Errorf("fetch %s: %w", symbol, err), "fetcher", "fetch_candles")
	}
	if len(resp.Candles) == 0 {
		return 0, fmt.Errorf("%w for %s in [%s, %s)", errs.ErrEmptyResponse, symbol,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	candles := models.DedupeKeepLast(resp.Candles)
	candles = models.ClipRange(candles, start, end)

	if err := f.store.Write(ctx, symbol, candles); err != nil {
		return 0, errs.Classify(err, "fetcher", "write_dataset")
	}

	f.logger.Info("fetch complete",
		slog.String("symbol", symbol),
		slog.Int("candles", len(candles)),
		slog.Time("first", candles[0].Timestamp),
		slog.Time("last", candles[len(candles)-1].Timestamp))
	return len(candles), nil
}

// FetchMultiple runs FetchAndSave over each symbol sequentially. One symbol
// failing does not abort the batch; the returned result maps each symbol to
// its outcome.
func (f *Fetcher) FetchMultiple(ctx context.Context, symbols []string, months int) *errs.BatchResult {
	runID := logger.NewRunID()
	log := logger.WithRun(f.logger, runID)
	result := errs.NewBatchResult(runID)

	log.Info("starting batch fetch",
		slog.Int("symbols", len(symbols)),
		slog.Int("months", months))

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			result.Record(symbol, err, 0, 0)
			continue
		}

		started := time.Now()
		rows, err := f.FetchAndSave(ctx, symbol, months)
		took := time.Since(started)
		result.Record(symbol, err, rows, took)

		if err != nil {
			log.Error("symbol fetch failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
				slog.Duration("took", took))
			continue
		}
		log.Info("symbol fetch succeeded",
			slog.String("symbol", symbol),
			slog.Int("rows", rows),
			slog.Duration("took", took))
	}

	result.Finished = time.Now()
	log.Info("batch fetch finished", slog.String("summary", result.Summary()))
	return result
}
