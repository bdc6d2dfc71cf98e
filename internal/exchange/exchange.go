// Package exchange defines the interfaces and request types for fetching
// OHLCV candle data from an exchange's public REST API, plus the OKX
// implementation. The interfaces are small and composable so tests can
// substitute fakes for the network-facing adapter.
package exchange

import (
	"context"
	"time"

	"github.com/quantfeed/candlekeep/internal/models"
)

// CandleFetcher retrieves OHLCV candle data for a time range.
//
// Implementations must return candles in chronological order (oldest first),
// restricted to the requested range, and must handle exchange pagination and
// rate limits internally. An empty range yields an empty slice, not an error.
type CandleFetcher interface {
	FetchCandles(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// RateLimitInfo exposes the client-side rate limiting state.
type RateLimitInfo interface {
	// GetLimits returns the configured rate limiting parameters.
	GetLimits() RateLimit

	// WaitForLimit blocks until the limiter allows another request or the
	// context is cancelled.
	WaitForLimit(ctx context.Context) error
}

// HealthChecker verifies the exchange is reachable with a lightweight probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Adapter combines all exchange capabilities. This is what the fetcher and
// updater depend on.
type Adapter interface {
	CandleFetcher
	RateLimitInfo
	HealthChecker
}

// FetchRequest specifies parameters for fetching candle data.
type FetchRequest struct {
	// Pair is the trading pair in OKX instId form (e.g. "BTC-USDT").
	Pair string `json:"pair"`

	// Start is the beginning of the time range (inclusive).
	Start time.Time `json:"start"`

	// End is the end of the time range (exclusive).
	End time.Time `json:"end"`

	// Interval is the candle granularity (e.g. "5m").
	Interval string `json:"interval"`

	// Limit caps the number of candles returned; 0 means no cap.
	Limit int `json:"limit,omitempty"`
}

// Validate checks the request parameters.
func (r *FetchRequest) Validate() error {
	if r.Pair == "" {
		return &ValidationError{Field: "pair", Message: "trading pair cannot be empty"}
	}
	if r.Interval == "" {
		return &ValidationError{Field: "interval", Message: "interval cannot be empty"}
	}
	if r.Start.IsZero() {
		return &ValidationError{Field: "start", Message: "start time cannot be zero"}
	}
	if r.End.IsZero() {
		return &ValidationError{Field: "end", Message: "end time cannot be zero"}
	}
	if !r.End.After(r.Start) {
		return &ValidationError{Field: "end", Message: "end time must be after start time"}
	}
	if r.Limit < 0 {
		return &ValidationError{Field: "limit", Message: "limit cannot be negative"}
	}
	return nil
}

// Duration returns the time span of the request.
func (r *FetchRequest) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// FetchResponse contains the results of a fetch operation.
type FetchResponse struct {
	// Candles holds the OHLCV data, oldest first.
	Candles []models.Candle `json:"candles"`

	// RateLimit reports the limiter state after the fetch.
	RateLimit RateLimitStatus `json:"rate_limit"`
}

// RateLimit describes the client-side rate limiting configuration.
type RateLimit struct {
	RequestsPerSecond float64       `json:"requests_per_second"`
	BurstSize         int           `json:"burst_size"`
	WindowDuration    time.Duration `json:"window_duration"`
}

// RateLimitStatus reports the current limiter state.
type RateLimitStatus struct {
	// Remaining is the approximate number of requests immediately available.
	Remaining int `json:"remaining"`

	// RetryAfter is how long to wait before the next request; zero means no
	// waiting is required.
	RetryAfter time.Duration `json:"retry_after"`
}

// ValidationError reports an invalid request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "validation error for field " + e.Field + ": " + e.Message
}
