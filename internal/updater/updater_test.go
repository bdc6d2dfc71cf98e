package updater

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/candlekeep/internal/config"
	"github.com/quantfeed/candlekeep/internal/errs"
	"github.com/quantfeed/candlekeep/internal/exchange"
	"github.com/quantfeed/candlekeep/internal/models"
	"github.com/quantfeed/candlekeep/internal/storage"
)

// fakeExchange serves candles for [start, end) out of a fixed market.
type fakeExchange struct {
	market map[string][]models.Candle
	errs   map[string]error
	calls  []exchange.FetchRequest
}

func (f *fakeExchange) FetchCandles(_ context.Context, req exchange.FetchRequest) (*exchange.FetchResponse, error) {
	f.calls = append(f.calls, req)
	if err := f.errs[req.Pair]; err != nil {
		return nil, err
	}

	var out []models.Candle
	for _, c := range f.market[req.Pair] {
		if !c.Timestamp.Before(req.Start) && c.Timestamp.Before(req.End) {
			out = append(out, c)
		}
	}
	return &exchange.FetchResponse{Candles: out}, nil
}

// series builds a contiguous 5m series starting at start.
func series(t *testing.T, symbol string, start time.Time, n int) []models.Candle {
	t.Helper()
	candles := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		c, err := models.NewCandle(
			start.Add(time.Duration(i)*models.BaseIntervalDuration),
			"100", "101", "99", "100.5", fmt.Sprintf("%d.5", i+1),
			symbol, models.BaseInterval,
		)
		require.NoError(t, err)
		candles = append(candles, *c)
	}
	return candles
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Pairs = []string{"BTC-USDT", "ETH-USDT"}
	return cfg
}

func newTestUpdater(ex exchange.CandleFetcher, store storage.DatasetStore, now time.Time) *Updater {
	u := New(ex, store, testConfig(), nil)
	u.now = func() time.Time { return now }
	return u
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches exactly the missing candles", func(t *testing.T) {
		// Dataset ends 2024-01-31 23:55; updating at 00:10 the next day must
		// fetch the two bars at 00:00 and 00:05 and nothing else.
		dayStart := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
		now := time.Date(2024, 2, 1, 0, 10, 0, 0, time.UTC)

		full := series(t, "BTC-USDT", dayStart, 290) // through 2024-02-01 00:05
		ex := &fakeExchange{market: map[string][]models.Candle{"BTC-USDT": full}}
		store := storage.NewMemoryStore()
		require.NoError(t, store.Write(ctx, "BTC-USDT", full[:288])) // through 23:55

		u := newTestUpdater(ex, store, now)
		added, err := u.Update(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Equal(t, 2, added)

		require.Len(t, ex.calls, 1)
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), ex.calls[0].Start)
		assert.Equal(t, now, ex.calls[0].End)

		loaded, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Equal(t, full, loaded)
		require.NoError(t, models.CheckStrictlyIncreasing(loaded))
	})

	t.Run("update equals fetching the gap and appending", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		full := series(t, "BTC-USDT", start, 1000)
		now := full[len(full)-1].Timestamp.Add(models.BaseIntervalDuration)

		ex := &fakeExchange{market: map[string][]models.Candle{"BTC-USDT": full}}

		// Path A: incremental update over a 400-bar gap.
		updated := storage.NewMemoryStore()
		require.NoError(t, updated.Write(ctx, "BTC-USDT", full[:600]))
		u := newTestUpdater(ex, updated, now)
		added, err := u.Update(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Equal(t, 400, added)

		// Path B: write the whole series fresh.
		fresh := storage.NewMemoryStore()
		require.NoError(t, fresh.Write(ctx, "BTC-USDT", full))

		a, err := updated.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		b, err := fresh.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Equal(t, b, a)
	})

	t.Run("idempotent when up to date", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		full := series(t, "BTC-USDT", start, 10)
		now := full[len(full)-1].Timestamp.Add(models.BaseIntervalDuration)

		ex := &fakeExchange{market: map[string][]models.Candle{"BTC-USDT": full}}
		store := storage.NewMemoryStore()
		require.NoError(t, store.Write(ctx, "BTC-USDT", full))

		u := newTestUpdater(ex, store, now)

		before, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, err := u.Update(ctx, "BTC-USDT")
			assert.ErrorIs(t, err, errs.ErrUpToDate)
		}

		after, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Empty(t, ex.calls, "no fetch should happen when up to date")
	})

	t.Run("up to date when only the forming bar is missing", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		stored := series(t, "BTC-USDT", start, 10)
		// A full interval has passed but the exchange has not confirmed the
		// next bar yet, so the fetch comes back empty.
		now := stored[len(stored)-1].Timestamp.Add(models.BaseIntervalDuration + time.Minute)

		ex := &fakeExchange{market: map[string][]models.Candle{"BTC-USDT": stored}}
		store := storage.NewMemoryStore()
		require.NoError(t, store.Write(ctx, "BTC-USDT", stored))

		u := newTestUpdater(ex, store, now)
		_, err := u.Update(ctx, "BTC-USDT")
		assert.ErrorIs(t, err, errs.ErrUpToDate)
	})

	t.Run("no local data", func(t *testing.T) {
		u := newTestUpdater(&fakeExchange{}, storage.NewMemoryStore(), time.Now())
		_, err := u.Update(ctx, "BTC-USDT")
		assert.ErrorIs(t, err, errs.ErrNoLocalData)
	})

	t.Run("unsupported pair", func(t *testing.T) {
		u := newTestUpdater(&fakeExchange{}, storage.NewMemoryStore(), time.Now())
		_, err := u.Update(ctx, "SHIB-USDT")
		assert.ErrorIs(t, err, errs.ErrUnsupportedPair)
	})

	t.Run("exchange failure leaves dataset untouched", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		stored := series(t, "BTC-USDT", start, 5)
		now := start.Add(24 * time.Hour)

		ex := &fakeExchange{errs: map[string]error{"BTC-USDT": errors.New("request timeout")}}
		store := storage.NewMemoryStore()
		require.NoError(t, store.Write(ctx, "BTC-USDT", stored))

		u := newTestUpdater(ex, store, now)
		_, err := u.Update(ctx, "BTC-USDT")
		require.Error(t, err)
		assert.Equal(t, errs.TypeTimeout, errs.TypeOf(err))

		loaded, err := store.Load(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Equal(t, stored, loaded)
	})
}

func TestUpdateMultiple(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("mixes updated, skipped, and failed symbols", func(t *testing.T) {
		btc := series(t, "BTC-USDT", start, 20)
		eth := series(t, "ETH-USDT", start, 10)
		now := btc[len(btc)-1].Timestamp.Add(models.BaseIntervalDuration)

		ex := &fakeExchange{market: map[string][]models.Candle{
			"BTC-USDT": btc,
			"ETH-USDT": eth,
		}}
		store := storage.NewMemoryStore()
		require.NoError(t, store.Write(ctx, "BTC-USDT", btc))     // current
		require.NoError(t, store.Write(ctx, "ETH-USDT", eth[:4])) // stale

		u := newTestUpdater(ex, store, now)
		result := u.UpdateMultiple(ctx, []string{"BTC-USDT", "ETH-USDT", "SHIB-USDT"})

		assert.True(t, result.Outcomes["BTC-USDT"].Skipped)
		assert.Equal(t, 6, result.Outcomes["ETH-USDT"].Rows)
		assert.Equal(t, []string{"SHIB-USDT"}, result.Failed())
		assert.Equal(t, 2, result.Succeeded())
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("reports range and staleness", func(t *testing.T) {
		stored := series(t, "BTC-USDT", start, 12)
		last := stored[len(stored)-1].Timestamp
		now := last.Add(time.Hour)

		store := storage.NewMemoryStore()
		require.NoError(t, store.Write(ctx, "BTC-USDT", stored))

		u := newTestUpdater(&fakeExchange{}, store, now)
		status, err := u.Status(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Equal(t, "BTC-USDT", status.Symbol)
		assert.Equal(t, 12, status.Rows)
		assert.True(t, status.First.Equal(start))
		assert.True(t, status.Last.Equal(last))
		assert.Equal(t, time.Hour, status.Age)
		assert.True(t, status.NeedsUpdate)
	})

	t.Run("fresh dataset needs no update", func(t *testing.T) {
		stored := series(t, "BTC-USDT", start, 12)
		now := stored[len(stored)-1].Timestamp.Add(models.BaseIntervalDuration)

		store := storage.NewMemoryStore()
		require.NoError(t, store.Write(ctx, "BTC-USDT", stored))

		u := newTestUpdater(&fakeExchange{}, store, now)
		status, err := u.Status(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.False(t, status.NeedsUpdate)
	})

	t.Run("missing dataset", func(t *testing.T) {
		u := newTestUpdater(&fakeExchange{}, storage.NewMemoryStore(), time.Now())
		_, err := u.Status(ctx, "BTC-USDT")
		assert.ErrorIs(t, err, errs.ErrNoLocalData)
	})
}

func TestScanGaps(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("contiguous series has no gaps", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Write(ctx, "BTC-USDT", series(t, "BTC-USDT", start, 50)))

		u := newTestUpdater(&fakeExchange{}, store, time.Now())
		gaps, err := u.ScanGaps(ctx, "BTC-USDT")
		require.NoError(t, err)
		assert.Empty(t, gaps)
	})

	t.Run("reports each missing run", func(t *testing.T) {
		full := series(t, "BTC-USDT", start, 20)
		// Remove bars 3..5 and bar 10.
		holey := append([]models.Candle{}, full[:3]...)
		holey = append(holey, full[6:10]...)
		holey = append(holey, full[11:]...)

		store := storage.NewMemoryStore()
		require.NoError(t, store.Write(ctx, "BTC-USDT", holey))

		u := newTestUpdater(&fakeExchange{}, store, time.Now())
		gaps, err := u.ScanGaps(ctx, "BTC-USDT")
		require.NoError(t, err)
		require.Len(t, gaps, 2)

		assert.True(t, gaps[0].Start.Equal(full[3].Timestamp))
		assert.True(t, gaps[0].End.Equal(full[5].Timestamp))
		assert.Equal(t, 3, gaps[0].MissingBars)
		assert.Equal(t, 15*time.Minute, gaps[0].Duration())

		assert.True(t, gaps[1].Start.Equal(full[10].Timestamp))
		assert.True(t, gaps[1].End.Equal(full[10].Timestamp))
		assert.Equal(t, 1, gaps[1].MissingBars)
	})

	t.Run("missing dataset", func(t *testing.T) {
		u := newTestUpdater(&fakeExchange{}, storage.NewMemoryStore(), time.Now())
		_, err := u.ScanGaps(ctx, "BTC-USDT")
		assert.ErrorIs(t, err, errs.ErrNoLocalData)
	})
}
