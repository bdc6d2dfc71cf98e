package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/quantfeed/candlekeep/internal/models"
)

// MemoryStore is an in-memory DatasetStore used by tests and dry runs. It is
// guarded by a mutex so it is safe under the race detector, even though the
// pipeline itself is sequential.
type MemoryStore struct {
	mu       sync.RWMutex
	datasets map[string][]models.Candle
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		datasets: make(map[string][]models.Candle),
	}
}

// Write implements DatasetStore.
func (m *MemoryStore) Write(ctx context.Context, symbol string, candles []models.Candle) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError("write", symbol, err)
	}
	if symbol == "" {
		return NewStorageError("write", symbol, errors.New("symbol cannot be empty"))
	}

	normalized := models.DedupeKeepLast(candles)
	for i := range normalized {
		if err := normalized[i].Validate(); err != nil {
			return NewStorageError("write", symbol, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return NewStorageError("write", symbol, errors.New("store is closed"))
	}
	m.datasets[symbol] = normalized
	return nil
}

// Append implements DatasetStore.
func (m *MemoryStore) Append(ctx context.Context, symbol string, candles []models.Candle) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, NewStorageError("append", symbol, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, NewStorageError("append", symbol, errors.New("store is closed"))
	}

	existing, ok := m.datasets[symbol]
	if !ok {
		return 0, NewStorageError("append", symbol, ErrDatasetNotFound)
	}

	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return 0, NewStorageError("append", symbol, err)
		}
	}

	merged := models.Merge(existing, candles)
	m.datasets[symbol] = merged
	return len(merged), nil
}

// Load implements DatasetStore.
func (m *MemoryStore) Load(ctx context.Context, symbol string) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("load", symbol, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, NewStorageError("load", symbol, errors.New("store is closed"))
	}

	dataset, ok := m.datasets[symbol]
	if !ok {
		return nil, NewStorageError("load", symbol, ErrDatasetNotFound)
	}

	out := make([]models.Candle, len(dataset))
	copy(out, dataset)
	return out, nil
}

// LoadRange implements DatasetStore.
func (m *MemoryStore) LoadRange(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	candles, err := m.Load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return models.ClipRange(candles, start, end), nil
}

// LatestTimestamp implements DatasetStore.
func (m *MemoryStore) LatestTimestamp(ctx context.Context, symbol string) (time.Time, error) {
	candles, err := m.Load(ctx, symbol)
	if err != nil {
		if errors.Is(err, ErrDatasetNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return models.LatestTimestamp(candles), nil
}

// Exists implements DatasetStore.
func (m *MemoryStore) Exists(ctx context.Context, symbol string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, NewStorageError("exists", symbol, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.datasets[symbol]
	return ok, nil
}

// Stats implements DatasetStore.
func (m *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("stats", "", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{}
	for symbol, candles := range m.datasets {
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
	}
	sort.Strings(stats.Symbols)
	return stats, nil
}

// Close implements DatasetStore.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
