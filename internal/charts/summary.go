package charts

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/candlekeep/internal/errs"
	"github.com/quantfeed/candlekeep/internal/models"
	"github.com/quantfeed/candlekeep/internal/resample"
)

// Summary describes one symbol's dataset: stored range, latest price, and
// trailing 24 hour statistics relative to the newest candle.
type Summary struct {
	Symbol    string             `json:"symbol"`
	Timeframe resample.Timeframe `json:"timeframe"`

	// Rows is the candle count at the requested timeframe.
	Rows  int       `json:"rows"`
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`

	LatestClose string `json:"latest_close"`
	High24h     string `json:"high_24h"`
	Low24h      string `json:"low_24h"`
	Volume24h   string `json:"volume_24h"`

	// AvgVolume is the mean per-candle volume over the whole stored series.
	AvgVolume string `json:"avg_volume"`

	// Change24h is the percentage move over the trailing 24 hours, rounded to
	// two decimal places.
	Change24h string `json:"change_24h"`
}

// Summary computes dataset statistics for a symbol. The 24 hour window is
// anchored at the newest stored candle, not the wall clock, so summaries of
// stale datasets still describe the data they contain.
func (r *Renderer) Summary(ctx context.Context, symbol string, tf resample.Timeframe) (*Summary, error) {
	series, err := r.loadSeries(ctx, symbol, tf, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}

	last := series[len(series)-1]
	summary := &Summary{
		Symbol:      symbol,
		Timeframe:   tf,
		Rows:        len(series),
		First:       series[0].Timestamp,
		Last:        last.Timestamp,
		LatestClose: last.Close,
	}

	totalVolume := decimal.Zero
	for i := range series {
		v, err := series[i].VolumeDecimal()
		if err != nil {
			return nil, errs.Classify(err, "charts", "summary")
		}
		totalVolume = totalVolume.Add(v)
	}
	summary.AvgVolume = totalVolume.Div(decimal.NewFromInt(int64(len(series)))).Round(8).String()

	windowStart := last.Timestamp.Add(-24 * time.Hour)
	window := models.ClipRange(series, windowStart, last.Timestamp)
	if len(window) == 0 {
		return summary, nil
	}

	high, err := window[0].HighDecimal()
	if err != nil {
		return nil, errs.Classify(err, "charts", "summary")
	}
	low, err := window[0].LowDecimal()
	if err != nil {
		return nil, errs.Classify(err, "charts", "summary")
	}
	volume := decimal.Zero
	for i := range window {
		h, err := window[i].HighDecimal()
		if err != nil {
			return nil, errs.Classify(err, "charts", "summary")
		}
		l, err := window[i].LowDecimal()
		if err != nil {
			return nil, errs.Classify(err, "charts", "summary")
		}
		v, err := window[i].VolumeDecimal()
		if err != nil {
			return nil, errs.Classify(err, "charts", "summary")
		}
		high = decimal.Max(high, h)
		low = decimal.Min(low, l)
		volume = volume.Add(v)
	}

	open, err := window[0].OpenDecimal()
	if err != nil {
		return nil, errs.Classify(err, "charts", "summary")
	}
	latest, err := last.CloseDecimal()
	if err != nil {
		return nil, errs.Classify(err, "charts", "summary")
	}
	if open.IsZero() {
		return nil, fmt.Errorf("cannot compute 24h change for %s: window opens at zero", symbol)
	}

	summary.High24h = high.String()
	summary.Low24h = low.String()
	summary.Volume24h = volume.String()
	summary.Change24h = latest.Sub(open).Div(open).Mul(decimal.NewFromInt(100)).Round(2).String()
	return summary, nil
}
