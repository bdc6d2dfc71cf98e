package charts

import (
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/shopspring/decimal"

	"github.com/quantfeed/candlekeep/internal/models"
)

// indicatorPeriod is the lookback used for the RSI and ATR panels.
const indicatorPeriod = 14

// rsiPoints computes a relative strength index over closes: average gain over
// average loss across a rolling window, scaled to 0..100. Points before the
// window fills are emitted as echarts missing values. Returns nil when the
// series is shorter than the window, in which case the panel is skipped.
func rsiPoints(closes []decimal.Decimal, period int) []opts.LineData {
	if period <= 0 || len(closes) <= period {
		return nil
	}

	hundred := decimal.NewFromInt(100)
	out := make([]opts.LineData, len(closes))
	gainSum, lossSum := decimal.Zero, decimal.Zero

	gain := make([]decimal.Decimal, len(closes))
	loss := make([]decimal.Decimal, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i].Sub(closes[i-1])
		if delta.IsPositive() {
			gain[i] = delta
		} else {
			loss[i] = delta.Neg()
		}
	}

	for i := range closes {
		if i >= 1 {
			gainSum = gainSum.Add(gain[i])
			lossSum = lossSum.Add(loss[i])
		}
		if i > period {
			gainSum = gainSum.Sub(gain[i-period])
			lossSum = lossSum.Sub(loss[i-period])
		}
		if i < period {
			out[i] = opts.LineData{Value: "-"}
			continue
		}

		switch {
		case lossSum.IsZero() && gainSum.IsZero():
			out[i] = opts.LineData{Value: "-"}
		case lossSum.IsZero():
			out[i] = opts.LineData{Value: 100.0}
		default:
			rs := gainSum.Div(lossSum)
			rsi := hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
			out[i] = opts.LineData{Value: rsi.InexactFloat64()}
		}
	}
	return out
}

// atrPoints computes an average true range: the rolling mean of the true
// range, where true range is the largest of high-low, |high-prevClose|, and
// |low-prevClose|. Returns nil when the series is shorter than the window.
func atrPoints(candles []models.Candle, period int) ([]opts.LineData, error) {
	if period <= 0 || len(candles) < period {
		return nil, nil
	}

	tr := make([]decimal.Decimal, len(candles))
	var prevClose decimal.Decimal
	for i := range candles {
		high, err := candles[i].HighDecimal()
		if err != nil {
			return nil, err
		}
		low, err := candles[i].LowDecimal()
		if err != nil {
			return nil, err
		}

		r := high.Sub(low)
		if i > 0 {
			r = decimal.Max(r, high.Sub(prevClose).Abs(), low.Sub(prevClose).Abs())
		}
		tr[i] = r

		prevClose, err = candles[i].CloseDecimal()
		if err != nil {
			return nil, err
		}
	}

	w := decimal.NewFromInt(int64(period))
	out := make([]opts.LineData, len(candles))
	sum := decimal.Zero
	for i := range tr {
		sum = sum.Add(tr[i])
		if i >= period {
			sum = sum.Sub(tr[i-period])
		}
		if i >= period-1 {
			out[i] = opts.LineData{Value: sum.Div(w).InexactFloat64()}
		} else {
			out[i] = opts.LineData{Value: "-"}
		}
	}
	return out, nil
}
