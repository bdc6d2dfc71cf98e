// Package storage persists one columnar dataset per trading pair. The
// DatasetStore interface abstracts the backend so tests can run against the
// in-memory implementation while production uses parquet files on disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantfeed/candlekeep/internal/models"
)

// ErrDatasetNotFound is returned when a symbol has no stored dataset.
var ErrDatasetNotFound = errors.New("dataset not found")

// DatasetStore handles per-symbol candle dataset persistence.
//
// Datasets hold base-interval candles only. Every write path normalizes the
// series (sorted, deduplicated by timestamp, keep-last) so loads always
// satisfy the strictly-increasing invariant.
type DatasetStore interface {
	// Write creates or overwrites the symbol's dataset with the given
	// candles. Used by the fetcher for full backfills.
	Write(ctx context.Context, symbol string, candles []models.Candle) error

	// Append merges new candles into the existing dataset, deduplicating by
	// timestamp with the new candles winning. Returns the number of rows in
	// the dataset after the merge. Appending to a missing dataset returns
	// ErrDatasetNotFound.
	Append(ctx context.Context, symbol string, candles []models.Candle) (int, error)

	// Load returns the symbol's full series, oldest first.
	// Returns ErrDatasetNotFound if the symbol was never fetched.
	Load(ctx context.Context, symbol string) ([]models.Candle, error)

	// LoadRange returns the candles with timestamps in [start, end].
	// A zero start or end leaves that side unbounded.
	LoadRange(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error)

	// LatestTimestamp returns the newest stored timestamp for the symbol,
	// or the zero time (and no error) when the dataset does not exist.
	LatestTimestamp(ctx context.Context, symbol string) (time.Time, error)

	// Exists reports whether the symbol has a stored dataset.
	Exists(ctx context.Context, symbol string) (bool, error)

	// Stats returns aggregate information across all stored datasets.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases any resources held by the store.
	Close() error
}

// Stats summarizes the stored datasets.
type Stats struct {
	// TotalCandles is the number of candles across all symbols.
	TotalCandles int64 `json:"total_candles"`

	// Symbols lists the symbols with stored data.
	Symbols []string `json:"symbols"`

	// EarliestData is the oldest stored timestamp across all symbols.
	EarliestData time.Time `json:"earliest_data"`

	// LatestData is the newest stored timestamp across all symbols.
	LatestData time.Time `json:"latest_data"`

	// StorageBytes is the on-disk footprint (zero for memory stores).
	StorageBytes int64 `json:"storage_bytes"`
}

// StorageError wraps a failure with the operation and dataset involved.
type StorageError struct {
	Operation string
	Dataset   string
	Err       error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Dataset != "" {
		return fmt.Sprintf("storage operation %s on dataset %s failed: %v", e.Operation, e.Dataset, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As support.
func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError creates a StorageError with operation context.
func NewStorageError(operation, dataset string, err error) *StorageError {
	return &StorageError{Operation: operation, Dataset: dataset, Err: err}
}
