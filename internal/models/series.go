package models

import (
	"fmt"
	"sort"
	"time"
)

// Series helpers operate on slices of candles for a single pair at the base
// interval. Every dataset on disk must satisfy the strictly-increasing,
// duplicate-free timestamp invariant; these functions are the only place
// where sorting and deduplication happen, so the fetcher, updater, and
// storage layers all normalize data the same way.

// SortByTime sorts candles by timestamp ascending, in place.
func SortByTime(candles []Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
}

// DedupeKeepLast sorts candles by timestamp and collapses duplicate
// timestamps, keeping the last occurrence in the input order. Later
// occurrences win because an updated fetch of the same bar supersedes the
// previously stored values.
func DedupeKeepLast(candles []Candle) []Candle {
	if len(candles) == 0 {
		return candles
	}

	// Stable sort preserves input order within equal timestamps, so the last
	// occurrence is the last element of each run.
	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	SortByTime(sorted)

	out := sorted[:0]
	for i := 0; i < len(sorted); i++ {
		if len(out) > 0 && out[len(out)-1].Timestamp.Equal(sorted[i].Timestamp) {
			out[len(out)-1] = sorted[i]
			continue
		}
		out = append(out, sorted[i])
	}
	return out
}

// Merge combines an existing series with new candles, deduplicating by
// timestamp with the new candles winning, and returns a sorted series.
func Merge(existing, incoming []Candle) []Candle {
	combined := make([]Candle, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	combined = append(combined, incoming...)
	return DedupeKeepLast(combined)
}

// CheckStrictlyIncreasing verifies the series invariant: timestamps strictly
// increasing with no duplicates. Returns an error naming the first violation.
func CheckStrictlyIncreasing(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Timestamp, candles[i].Timestamp
		if !cur.After(prev) {
			return fmt.Errorf("series invariant violated at index %d: %s does not follow %s",
				i, cur.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
	}
	return nil
}

// ClipRange returns the subslice of a sorted series with timestamps in
// [start, end]. A zero start or end leaves that side unbounded.
func ClipRange(candles []Candle, start, end time.Time) []Candle {
	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(candles), func(i int) bool {
			return !candles[i].Timestamp.Before(start)
		})
	}
	hi := len(candles)
	if !end.IsZero() {
		hi = sort.Search(len(candles), func(i int) bool {
			return candles[i].Timestamp.After(end)
		})
	}
	if lo > hi {
		lo = hi
	}
	return candles[lo:hi]
}

// LatestTimestamp returns the timestamp of the last candle in a sorted
// series, or the zero time for an empty series.
func LatestTimestamp(candles []Candle) time.Time {
	if len(candles) == 0 {
		return time.Time{}
	}
	return candles[len(candles)-1].Timestamp
}
