package charts

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/candlekeep/internal/models"
)

func decimals(t *testing.T, values ...string) []decimal.Decimal {
	t.Helper()
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		require.NoError(t, err)
		out[i] = d
	}
	return out
}

func TestRSIPoints(t *testing.T) {
	t.Run("mixed gains and losses", func(t *testing.T) {
		// Deltas over a window of 2: +1 then -0.5, so rs = 1/0.5 = 2 and
		// rsi = 100 - 100/3.
		pts := rsiPoints(decimals(t, "10", "11", "10.5"), 2)
		require.Len(t, pts, 3)
		assert.Equal(t, "-", pts[0].Value)
		assert.Equal(t, "-", pts[1].Value)
		assert.InDelta(t, 66.6667, pts[2].Value.(float64), 0.001)
	})

	t.Run("monotonic rise pins at 100", func(t *testing.T) {
		pts := rsiPoints(decimals(t, "1", "2", "3", "4"), 2)
		require.Len(t, pts, 4)
		assert.Equal(t, 100.0, pts[2].Value)
		assert.Equal(t, 100.0, pts[3].Value)
	})

	t.Run("flat series has no signal", func(t *testing.T) {
		pts := rsiPoints(decimals(t, "5", "5", "5"), 2)
		require.Len(t, pts, 3)
		assert.Equal(t, "-", pts[2].Value)
	})

	t.Run("series shorter than the window", func(t *testing.T) {
		assert.Nil(t, rsiPoints(decimals(t, "10", "11"), 2))
		assert.Nil(t, rsiPoints(nil, 14))
	})
}

func TestATRPoints(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(open, high, low, closePrice string, i int) models.Candle {
		c, err := models.NewCandle(
			start.Add(time.Duration(i)*models.BaseIntervalDuration),
			open, high, low, closePrice, "1", "BTC-USDT", models.BaseInterval,
		)
		require.NoError(t, err)
		return *c
	}

	t.Run("rolling mean of true range", func(t *testing.T) {
		candles := []models.Candle{
			mk("9", "10", "8", "9", 0),      // tr = 10-8 = 2
			mk("9", "12", "9", "11", 1),     // tr = max(3, 3, 0) = 3
			mk("11", "11", "10", "10.5", 2), // tr = max(1, 0, 1) = 1
		}

		pts, err := atrPoints(candles, 2)
		require.NoError(t, err)
		require.Len(t, pts, 3)
		assert.Equal(t, "-", pts[0].Value)
		assert.InDelta(t, 2.5, pts[1].Value.(float64), 1e-9)
		assert.InDelta(t, 2.0, pts[2].Value.(float64), 1e-9)
	})

	t.Run("series shorter than the window", func(t *testing.T) {
		pts, err := atrPoints([]models.Candle{mk("9", "10", "8", "9", 0)}, 2)
		require.NoError(t, err)
		assert.Nil(t, pts)
	})
}
