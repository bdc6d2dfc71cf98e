package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/quantfeed/candlekeep/internal/models"
)

// candleRow is the parquet schema for one stored candle: a millisecond UTC
// timestamp column plus the five OHLCV columns as float64.
type candleRow struct {
	Timestamp int64   `parquet:"timestamp"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// ParquetStore persists one snappy-compressed parquet file per symbol under
// a base directory, named "<SYMBOL>_5m.parquet". Files are replaced
// atomically via a temp file and rename so a crash mid-write never corrupts
// an existing dataset.
type ParquetStore struct {
	dir string
}

// NewParquetStore creates a store rooted at dir, creating it if needed.
func NewParquetStore(dir string) (*ParquetStore, error) {
	if dir == "" {
		return nil, NewStorageError("init", "", errors.New("data directory cannot be empty"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewStorageError("init", "", fmt.Errorf("create data directory: %w", err))
	}
	return &ParquetStore{dir: dir}, nil
}

// Path returns the dataset file path for a symbol.
func (p *ParquetStore) Path(symbol string) string {
	return filepath.Join(p.dir, fmt.Sprintf("%s_%s.parquet", symbol, models.BaseInterval))
}

// Write implements DatasetStore.
func (p *ParquetStore) Write(ctx context.Context, symbol string, candles []models.Candle) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError("write", symbol, err)
	}
	if symbol == "" {
		return NewStorageError("write", symbol, errors.New("symbol cannot be empty"))
	}

	rows, err := toRows(candles)
	if err != nil {
		return NewStorageError("write", symbol, err)
	}
	if err := p.replaceFile(symbol, rows); err != nil {
		return NewStorageError("write", symbol, err)
	}
	return nil
}

// Append implements DatasetStore.
func (p *ParquetStore) Append(ctx context.Context, symbol string, candles []models.Candle) (int, error) {
	existing, err := p.Load(ctx, symbol)
	if err != nil {
		return 0, err
	}

	merged := models.Merge(existing, candles)
	rows, err := toRows(merged)
	if err != nil {
		return 0, NewStorageError("append", symbol, err)
	}
	if err := p.replaceFile(symbol, rows); err != nil {
		return 0, NewStorageError("append", symbol, err)
	}
	return len(merged), nil
}

// Load implements DatasetStore.
func (p *ParquetStore) Load(ctx context.Context, symbol string) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("load", symbol, err)
	}

	path := p.Path(symbol)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewStorageError("load", symbol, ErrDatasetNotFound)
	}

	rows, err := parquet.ReadFile[candleRow](path)
	if err != nil {
		return nil, NewStorageError("load", symbol, fmt.Errorf("read parquet file: %w", err))
	}

	candles := fromRows(rows, symbol)
	candles = models.DedupeKeepLast(candles)
	return candles, nil
}

// LoadRange implements DatasetStore.
func (p *ParquetStore) LoadRange(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	candles, err := p.Load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return models.ClipRange(candles, start, end), nil
}

// LatestTimestamp implements DatasetStore.
func (p *ParquetStore) LatestTimestamp(ctx context.Context, symbol string) (time.Time, error) {
	candles, err := p.Load(ctx, symbol)
	if err != nil {
		if errors.Is(err, ErrDatasetNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return models.LatestTimestamp(candles), nil
}

// Exists implements DatasetStore.
func (p *ParquetStore) Exists(ctx context.Context, symbol string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, NewStorageError("exists", symbol, err)
	}
	_, err := os.Stat(p.Path(symbol))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, NewStorageError("exists", symbol, err)
	}
	return true, nil
}

// Stats implements DatasetStore by scanning every dataset file in the base
// directory.
func (p *ParquetStore) Stats(ctx context.Context) (*Stats, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, NewStorageError("stats", "", err)
	}

	suffix := fmt.Sprintf("_%s.parquet", models.BaseInterval)
	stats := &Stats{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, NewStorageError("stats", "", err)
		}

		symbol := strings.TrimSuffix(entry.Name(), suffix)
		candles, err := p.Load(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if len(candles) == 0 {
			continue
		}

		stats.Symbols = append(stats.Symbols, symbol)
		stats.TotalCandles += int64(len(candles))

		first := candles[0].Timestamp
		last := candles[len(candles)-1].Timestamp
		if stats.EarliestData.IsZero() || first.Before(stats.EarliestData) {
			stats.EarliestData = first
		}
		if last.After(stats.LatestData) {
			stats.LatestData = last
		}

		if info, err := entry.Info(); err == nil {
			stats.StorageBytes += info.Size()
		}
	}

	sort.Strings(stats.Symbols)
	return stats, nil
}

// Close implements DatasetStore. The parquet store holds no open handles
// between operations.
func (p *ParquetStore) Close() error { return nil }

// replaceFile writes rows to a temp file in the data directory and renames
// it over the target path.
func (p *ParquetStore) replaceFile(symbol string, rows []candleRow) error {
	target := p.Path(symbol)
	tmp, err := os.CreateTemp(p.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	// WriteFile manages its own handle; the CreateTemp handle only reserved
	// the name.
	tmp.Close()

	if err := parquet.WriteFile(tmpPath, rows, parquet.Compression(&parquet.Snappy)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write parquet file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace dataset file: %w", err)
	}
	return nil
}

// toRows converts candles to parquet rows, normalizing the series first so
// the file always satisfies the strictly-increasing timestamp invariant.
func toRows(candles []models.Candle) ([]candleRow, error) {
	normalized := models.DedupeKeepLast(candles)

	rows := make([]candleRow, 0, len(normalized))
	for i := range normalized {
		c := &normalized[i]
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("candle %s rejected: %w", c.Timestamp.Format(time.RFC3339), err)
		}
		open, high, low, close, volume, err := c.Floats()
		if err != nil {
			return nil, err
		}
		rows = append(rows, candleRow{
			Timestamp: c.Timestamp.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
		})
	}
	return rows, nil
}

// fromRows converts stored parquet rows back to candles. Floats are
// formatted with the shortest representation that round-trips, so a value
// written from a loaded candle reproduces the same string.
func fromRows(rows []candleRow, symbol string) []models.Candle {
	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(row.Timestamp).UTC(),
			Open:      formatFloat(row.Open),
			High:      formatFloat(row.High),
			Low:       formatFloat(row.Low),
			Close:     formatFloat(row.Close),
			Volume:    formatFloat(row.Volume),
			Pair:      symbol,
			Interval:  models.BaseInterval,
		})
	}
	return candles
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// canonicalize rewrites a candle's numeric strings exactly as they would
// read back after a parquet round trip. Exposed for tests that compare
// in-memory candles with stored data.
func canonicalize(c models.Candle) models.Candle {
	for _, field := range []*string{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
		if d, err := decimal.NewFromString(*field); err == nil {
			*field = formatFloat(d.InexactFloat64())
		}
	}
	return c
}
