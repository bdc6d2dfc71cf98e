// Package updater extends existing datasets incrementally: it measures the
// gap between the newest stored candle and now, fetches only the missing
// bars, and appends them. It also reports dataset status and audits stored
// series for internal gaps.
package updater

import (
	"context"
	"errors"
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

// Updater performs incremental dataset updates.
type Updater struct {
	exchange exchange.CandleFetcher
	store    storage.DatasetStore
	cfg      *config.Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Updater.
func New(ex exchange.CandleFetcher, store storage.DatasetStore, cfg *config.Config, log *slog.Logger) *Updater {
	if log == nil {
		log = slog.Default()
	}
	return &Updater{
		exchange: ex,
		store:    store,
		cfg:      cfg,
		logger:   log.With(slog.String("component", "updater")),
		now:      time.Now,
	}
}

// Update fetches the candles missing between the newest stored bar and now
// and appends them to the symbol's dataset. Returns the number of candles
// appended.
//
// A symbol that was never fetched yields ErrNoLocalData. A gap smaller than
// one base interval yields ErrUpToDate and leaves the dataset untouched, so
// repeated updates are idempotent.
func (u *Updater) Update(ctx context.Context, symbol string) (int, error) {
	if !u.cfg.SupportsPair(symbol) {
		return 0, fmt.Errorf("%w: %s", errs.ErrUnsupportedPair, symbol)
	}

	last, err := u.store.LatestTimestamp(ctx, symbol)
	if err != nil {
		return 0, errs.Classify(err, "updater", "latest_timestamp")
	}
	if last.IsZero() {
		return 0, fmt.Errorf("%w: %s", errs.ErrNoLocalData, symbol)
	}

	now := u.now().UTC()
	start := last.Add(models.BaseIntervalDuration)
	if !now.After(start) {
		return 0, fmt.Errorf("%w: %s (last candle %s)", errs.ErrUpToDate, symbol, last.Format(time.RFC3339))
	}

	u.logger.Info("updating dataset",
		slog.String("symbol", symbol),
		slog.Time("last", last),
		slog.Duration("gap", now.Sub(last)))

	resp, err := u.exchange.FetchCandles(ctx, exchange.FetchRequest{
		Pair:     symbol,
		Start:    start,
		End:      now,
		Interval: models.BaseInterval,
	})
	if err != nil {
		return 0, errs.Classify(fmt.Errorf("fetch gap for %s: %w", symbol, err), "updater", "fetch_candles")
	}
	if len(resp.Candles) == 0 {
		// The only missing bar is still forming on the exchange side.
		return 0, fmt.Errorf("%w: %s (no completed candles after %s)", errs.ErrUpToDate, symbol, last.Format(time.RFC3339))
	}

	total, err := u.store.Append(ctx, symbol, resp.Candles)
	if err != nil {
		return 0, errs.Classify(err, "updater", "append_dataset")
	}

	u.logger.Info("update complete",
		slog.String("symbol", symbol),
		slog.Int("appended", len(resp.Candles)),
		slog.Int("total", total))
	return len(resp.Candles), nil
}

// UpdateMultiple runs Update over each symbol sequentially with per-symbol
// failure isolation. Up-to-date symbols are recorded as skipped, not failed.
func (u *Updater) UpdateMultiple(ctx context.Context, symbols []string) *errs.BatchResult {
	runID := logger.NewRunID()
	log := logger.WithRun(u.logger, runID)
	result := errs.NewBatchResult(runID)

	log.Info("starting batch update", slog.Int("symbols", len(symbols)))

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			result.Record(symbol, err, 0, 0)
			continue
		}

		started := time.Now()
		rows, err := u.Update(ctx, symbol)
		took := time.Since(started)

		switch {
		case errors.Is(err, errs.ErrUpToDate):
			result.RecordSkipped(symbol, took)
			log.Info("symbol already up to date", slog.String("symbol", symbol))
		case err != nil:
			result.Record(symbol, err, 0, took)
			log.Error("symbol update failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()))
		default:
			result.Record(symbol, nil, rows, took)
			log.Info("symbol updated",
				slog.String("symbol", symbol),
				slog.Int("appended", rows))
		}
	}

	result.Finished = time.Now()
	log.Info("batch update finished", slog.String("summary", result.Summary()))
	return result
}

// Status describes the freshness of one symbol's dataset.
type Status struct {
	Symbol      string        `json:"symbol"`
	Rows        int           `json:"rows"`
	First       time.Time     `json:"first"`
	Last        time.Time     `json:"last"`
	Age         time.Duration `json:"age"`
	NeedsUpdate bool          `json:"needs_update"`
}

// Status reports the stored range, row count, and staleness for a symbol.
func (u *Updater) Status(ctx context.Context, symbol string) (*Status, error) {
	candles, err := u.store.Load(ctx, symbol)
	if err != nil {
		if errors.Is(err, storage.ErrDatasetNotFound) {
			return nil, fmt.Errorf("%w: %s", errs.ErrNoLocalData, symbol)
		}
		return nil, errs.Classify(err, "updater", "load_dataset")
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s (dataset is empty)", errs.ErrNoLocalData, symbol)
	}

	last := candles[len(candles)-1].Timestamp
	age := u.now().UTC().Sub(last)
	return &Status{
		Symbol:      symbol,
		Rows:        len(candles),
		First:       candles[0].Timestamp,
		Last:        last,
		Age:         age,
		NeedsUpdate: age >= 2*models.BaseIntervalDuration,
	}, nil
}

// Gap is a run of missing base-interval bars inside a stored series.
type Gap struct {
	// Start is the timestamp of the first missing bar.
	Start time.Time `json:"start"`

	// End is the timestamp of the last missing bar.
	End time.Time `json:"end"`

	// MissingBars is the number of absent candles in [Start, End].
	MissingBars int `json:"missing_bars"`
}

// Duration returns the time span covered by the gap.
func (g Gap) Duration() time.Duration {
	return g.End.Sub(g.Start) + models.BaseIntervalDuration
}

// ScanGaps walks a stored series and reports every internal run of missing
// bars. Exchanges have maintenance windows, so gaps are not necessarily
// errors, but they explain surprises in resampled output.
func (u *Updater) ScanGaps(ctx context.Context, symbol string) ([]Gap, error) {
	candles, err := u.store.Load(ctx, symbol)
	if err != nil {
		if errors.Is(err, storage.ErrDatasetNotFound) {
			return nil, fmt.Errorf("%w: %s", errs.ErrNoLocalData, symbol)
		}
		return nil, errs.Classify(err, "updater", "load_dataset")
	}
	if err := models.CheckStrictlyIncreasing(candles); err != nil {
		return nil, errs.Classify(err, "updater", "scan_gaps")
	}

	var gaps []Gap
	for i := 1; i < len(candles); i++ {
		delta := candles[i].Timestamp.Sub(candles[i-1].Timestamp)
		if delta <= models.BaseIntervalDuration {
			continue
		}
		missing := int(delta/models.BaseIntervalDuration) - 1
		gaps = append(gaps, Gap{
			Start:       candles[i-1].Timestamp.Add(models.BaseIntervalDuration),
			End:         candles[i].Timestamp.Add(-models.BaseIntervalDuration),
			MissingBars: missing,
		})
	}

	if len(gaps) > 0 {
		u.logger.Warn("dataset has internal gaps",
			slog.String("symbol", symbol),
			slog.Int("gaps", len(gaps)))
	}
	return gaps, nil
}
