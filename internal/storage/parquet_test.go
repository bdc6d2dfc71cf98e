package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/candlekeep/internal/models"
)

func testCandle(t *testing.T, ts time.Time, open, high, low, close, volume string) models.Candle {
	t.Helper()
	c, err := models.NewCandle(ts, open, high, low, close, volume, "BTC-USDT", models.BaseInterval)
	require.NoError(t, err)
	return *c
}

func testSeries(t *testing.T, start time.Time, n int) []models.Candle {
	t.Helper()
	candles := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * models.BaseIntervalDuration)
		candles = append(candles, testCandle(t, ts, "100.5", "101.25", "99.75", "100.9", "12.5"))
	}
	return candles
}

func newTestParquetStore(t *testing.T) *ParquetStore {
	t.Helper()
	store, err := NewParquetStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestParquetStoreWriteLoad(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("round trip preserves series", func(t *testing.T) {
		store := newTestParquetStore(t)
		candles := testSeries(t, start, 5)

		require.NoError(t, store.Write(ctx, "BTC-USDT", candles))

		loaded, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		require.Len(t, loaded, 5)
		require.NoError(t, models.CheckStrictlyIncreasing(loaded))

		for i := range candles {
			assert.Equal(t, canonicalize(candles[i]), loaded[i])
		}
	})

	t.Run("load is stable across round trips", func(t *testing.T) {
		store := newTestParquetStore(t)
		require.NoError(t, store.Write(ctx, "BTC-USDT", testSeries(t, start, 3)))

		first, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)

		require.NoError(t, store.Write(ctx, "BTC-USDT", first))
		second, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("write overwrites existing dataset", func(t *testing.T) {
		store := newTestParquetStore(t)
		require.NoError(t, store.Write(ctx, "BTC-USDT", testSeries(t, start, 10)))
		require.NoError(t, store.Write(ctx, "BTC-USDT", testSeries(t, start, 3)))

		loaded, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Len(t, loaded, 3)
	})

	t.Run("write sorts and deduplicates input", func(t *testing.T) {
		store := newTestParquetStore(t)
		later := testCandle(t, start.Add(models.BaseIntervalDuration), "101", "102", "100", "101.5", "3")
		dup := testCandle(t, start, "200", "210", "190", "205", "7")
		first := testCandle(t, start, "100", "110", "90", "105", "5")

		require.NoError(t, store.Write(ctx, "BTC-USDT", []models.Candle{later, first, dup}))

		loaded, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, "205", loaded[0].Close)
		assert.Equal(t, "101.5", loaded[1].Close)
	})

	t.Run("write rejects invalid candle", func(t *testing.T) {
		store := newTestParquetStore(t)
		bad := testCandle(t, start, "100", "110", "90", "105", "5")
		bad.High = "80"

		err := store.Write(ctx, "BTC-USDT", []models.Candle{bad})
		require.Error(t, err)

		var storageErr *StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "write", storageErr.Operation)
	})

	t.Run("load missing dataset", func(t *testing.T) {
		store := newTestParquetStore(t)
		_, err := store.Load(ctx, "ETH-USDT")
		assert.ErrorIs(t, err, ErrDatasetNotFound)
	})
}

func TestParquetStoreAppend(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("append extends dataset", func(t *testing.T) {
		store := newTestParquetStore(t)
		require.NoError(t, store.Write(ctx, "BTC-USDT", testSeries(t, start, 4)))

		newer := testSeries(t, start.Add(4*models.BaseIntervalDuration), 2)
		total, err := store.Append(ctx, "BTC-USDT", newer)
		require.NoError(t, err)
		assert.Equal(t, 6, total)

		loaded, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		require.Len(t, loaded, 6)
		require.NoError(t, models.CheckStrictlyIncreasing(loaded))
	})

	t.Run("append deduplicates with incoming winning", func(t *testing.T) {
		store := newTestParquetStore(t)
		require.NoError(t, store.Write(ctx, "BTC-USDT", testSeries(t, start, 2)))

		revised := testCandle(t, start.Add(models.BaseIntervalDuration), "300", "310", "290", "305", "9")
		total, err := store.Append(ctx, "BTC-USDT", []models.Candle{revised})
		require.NoError(t, err)
		assert.Equal(t, 2, total)

		loaded, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Equal(t, "305", loaded[1].Close)
	})

	t.Run("append is idempotent", func(t *testing.T) {
		store := newTestParquetStore(t)
		require.NoError(t, store.Write(ctx, "BTC-USDT", testSeries(t, start, 3)))

		before, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)

		total, err := store.Append(ctx, "BTC-USDT", before)
		require.NoError(t, err)
		assert.Equal(t, len(before), total)

		after, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("append to missing dataset", func(t *testing.T) {
		store := newTestParquetStore(t)
		_, err := store.Append(ctx, "ETH-USDT", testSeries(t, start, 1))
		assert.ErrorIs(t, err, ErrDatasetNotFound)
	})
}

func TestParquetStoreQueries(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("load range clips to bounds", func(t *testing.T) {
		store := newTestParquetStore(t)
		require.NoError(t, store.Write(ctx, "BTC-USDT", testSeries(t, start, 12)))

		from := start.Add(2 * models.BaseIntervalDuration)
		to := start.Add(5 * models.BaseIntervalDuration)
		got, err := store.LoadRange(ctx, "BTC-USDT", from, to)
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.True(t, got[0].Timestamp.Equal(from))
		assert.True(t, got[len(got)-1].Timestamp.Equal(to))
	})

	t.Run("load range with open bounds", func(t *testing.T) {
		store := newTestParquetStore(t)
		require.NoError(t, store.Write(ctx, "BTC-USDT", testSeries(t, start, 6)))

		got, err := store.LoadRange(ctx, "BTC-USDT", time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Len(t, got, 6)
	})

	t.Run("latest timestamp", func(t *testing.T) {
		store := newTestParquetStore(t)
		require.NoError(t, store.Write(ctx, "BTC-USDT", testSeries(t, start, 3)))

		latest, err := store.LatestTimestamp(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.True(t, latest.Equal(start.Add(2*models.BaseIntervalDuration)))
	})

	t.Run("latest timestamp for missing dataset is zero", func(t *testing.T) {
		store := newTestParquetStore(t)
		latest, err := store.LatestTimestamp(ctx, "ETH-USDT")
		require.NoError(t, err)
		assert.True(t, latest.IsZero())
	})

	t.Run("exists", func(t *testing.T) {
		store := newTestParquetStore(t)
		require.NoError(t, store.Write(ctx, "BTC-USDT", testSeries(t, start, 1)))

		ok, err := store.Exists(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Exists(ctx, "ETH-USDT")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stats aggregates all datasets", func(t *testing.T) {
		store := newTestParquetStore(t)
		require.NoError(t, store.Write(ctx, "BTC-USDT", testSeries(t, start, 4)))
		require.NoError(t, store.Write(ctx, "ETH-USDT", testSeries(t, start.Add(time.Hour), 2)))

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(6), stats.TotalCandles)
		assert.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, stats.Symbols)
		assert.True(t, stats.EarliestData.Equal(start))
		assert.True(t, stats.LatestData.Equal(start.Add(time.Hour+models.BaseIntervalDuration)))
		assert.Greater(t, stats.StorageBytes, int64(0))
	})
}

func TestParquetStoreContextCancellation(t *testing.T) {
	store := newTestParquetStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Write(ctx, "BTC-USDT", nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Load(ctx, "BTC-USDT")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParquetStorePath(t *testing.T) {
	store := newTestParquetStore(t)
	assert.Equal(t, "BTC-USDT_5m.parquet", filepath.Base(store.Path("BTC-USDT")))
}

func TestNewParquetStoreEmptyDir(t *testing.T) {
	_, err := NewParquetStore("")
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "init", storageErr.Operation)
}

func TestStorageErrorUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := NewStorageError("write", "BTC-USDT", inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "write")
	assert.Contains(t, err.Error(), "BTC-USDT")
}
