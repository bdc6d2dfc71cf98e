// Package resample derives coarser timeframes from stored base-interval
// candles. Aggregation follows the standard OHLCV rules: open from the first
// bar of the bucket, high is the maximum, low the minimum, close from the
// last bar, and volume the sum. Derived series are views; they are never
// written back to storage.
package resample

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/candlekeep/internal/models"
)

// Timeframe is a supported candle granularity.
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Timeframes lists the supported granularities, finest first.
var Timeframes = []Timeframe{TF5m, TF15m, TF1h, TF4h, TF1d}

var durations = map[Timeframe]time.Duration{
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

// Parse converts a timeframe string to a Timeframe.
func Parse(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := durations[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q (supported: 5m, 15m, 1h, 4h, 1d)", s)
	}
	return tf, nil
}

// Duration returns the span of one candle at this timeframe.
func (tf Timeframe) Duration() time.Duration {
	return durations[tf]
}

// IsDaily reports whether bucket boundaries follow calendar days rather than
// fixed UTC offsets.
func (tf Timeframe) IsDaily() bool {
	return tf == TF1d
}

// Aggregate resamples base-interval candles into the target timeframe.
//
// Input must be a sorted, duplicate-free base series. Intraday buckets align
// to fixed multiples of the timeframe from the Unix epoch (so 1h candles
// start on the hour). Daily buckets align to midnight in loc, matching the
// exchange's trading day; a nil loc aligns days to UTC. Partial buckets at
// either edge are emitted from whatever bars are present.
func Aggregate(candles []models.Candle, tf Timeframe, loc *time.Location) ([]models.Candle, error) {
	if _, ok := durations[tf]; !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", tf)
	}
	if err := models.CheckStrictlyIncreasing(candles); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, nil
	}
	if tf == TF5m {
		out := make([]models.Candle, len(candles))
		copy(out, candles)
		return out, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	out := make([]models.Candle, 0, len(candles)/int(tf.Duration()/models.BaseIntervalDuration)+1)
	var (
		bucket      time.Time
		high        decimal.Decimal
		low         decimal.Decimal
		volume      decimal.Decimal
		bucketOpen  string
		bucketClose string
	)
	haveBucket := false

	flush := func() {
		out = append(out, models.Candle{
			Timestamp: bucket,
			Open:      bucketOpen,
			High:      high.String(),
			Low:       low.String(),
			Close:     bucketClose,
			Volume:    volume.String(),
			Pair:      candles[0].Pair,
			Interval:  string(tf),
		})
	}

	for i := range candles {
		c := &candles[i]
		b := bucketStart(c.Timestamp, tf, loc)

		h, err := c.HighDecimal()
		if err != nil {
			return nil, fmt.Errorf("candle %s: %w", c.Timestamp.Format(time.RFC3339), err)
		}
		l, err := c.LowDecimal()
		if err != nil {
			return nil, fmt.Errorf("candle %s: %w", c.Timestamp.Format(time.RFC3339), err)
		}
		v, err := c.VolumeDecimal()
		if err != nil {
			return nil, fmt.Errorf("candle %s: %w", c.Timestamp.Format(time.RFC3339), err)
		}

		if !haveBucket || !b.Equal(bucket) {
			if haveBucket {
				flush()
			}
			bucket = b
			bucketOpen = c.Open
			high, low, volume = h, l, v
			haveBucket = true
		} else {
			high = decimal.Max(high, h)
			low = decimal.Min(low, l)
			volume = volume.Add(v)
		}
		bucketClose = c.Close
	}
	flush()
	return out, nil
}

// bucketStart returns the UTC instant the candle's bucket begins at.
func bucketStart(ts time.Time, tf Timeframe, loc *time.Location) time.Time {
	if tf.IsDaily() {
		local := ts.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()
	}
	return ts.UTC().Truncate(tf.Duration())
}
