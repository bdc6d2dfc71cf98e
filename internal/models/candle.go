// Package models provides the core data structures for OHLCV market data:
// candles, candle series helpers, and their validation rules.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BaseInterval is the granularity every dataset is stored at. Coarser
// timeframes are always derived views, never persisted.
const BaseInterval = "5m"

// BaseIntervalDuration is the duration of one stored candle.
const BaseIntervalDuration = 5 * time.Minute

// Candle represents OHLCV price and volume data for one trading pair over one
// time interval. Prices and volume are kept as decimal strings so that values
// coming from the exchange survive round trips without float formatting
// artifacts; use the decimal accessors for arithmetic.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      string    `json:"open"`
	High      string    `json:"high"`
	Low       string    `json:"low"`
	Close     string    `json:"close"`
	Volume    string    `json:"volume"`
	Pair      string    `json:"pair"`
	Interval  string    `json:"interval"`
}

// ValidationError reports which candle field failed validation and why.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Validate checks that the candle is internally consistent: all price fields
// parse as decimals greater than zero, volume is non-negative, the timestamp
// is set, and the OHLC relationships hold (high >= max(open, close),
// low <= min(open, close)).
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "timestamp cannot be zero"}
	}

	open, err := decimal.NewFromString(c.Open)
	if err != nil {
		return &ValidationError{Field: "open", Message: fmt.Sprintf("invalid open price format: %v", err)}
	}
	high, err := decimal.NewFromString(c.High)
	if err != nil {
		return &ValidationError{Field: "high", Message: fmt.Sprintf("invalid high price format: %v", err)}
	}
	low, err := decimal.NewFromString(c.Low)
	if err != nil {
		return &ValidationError{Field: "low", Message: fmt.Sprintf("invalid low price format: %v", err)}
	}
	close, err := decimal.NewFromString(c.Close)
	if err != nil {
		return &ValidationError{Field: "close", Message: fmt.Sprintf("invalid close price format: %v", err)}
	}
	volume, err := decimal.NewFromString(c.Volume)
	if err != nil {
		return &ValidationError{Field: "volume", Message: fmt.Sprintf("invalid volume format: %v", err)}
	}

	zero := decimal.Zero
	if open.LessThanOrEqual(zero) {
		return &ValidationError{Field: "open", Message: "open price must be greater than 0"}
	}
	if high.LessThanOrEqual(zero) {
		return &ValidationError{Field: "high", Message: "high price must be greater than 0"}
	}
	if low.LessThanOrEqual(zero) {
		return &ValidationError{Field: "low", Message: "low price must be greater than 0"}
	}
	if close.LessThanOrEqual(zero) {
		return &ValidationError{Field: "close", Message: "close price must be greater than 0"}
	}
	if volume.LessThan(zero) {
		return &ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}

	maxOpenClose := decimal.Max(open, close)
	if high.LessThan(maxOpenClose) {
		return &ValidationError{
			Field:   "high",
			Message: fmt.Sprintf("high price (%s) must be greater than or equal to max(open, close) (%s)", high, maxOpenClose),
		}
	}
	minOpenClose := decimal.Min(open, close)
	if low.GreaterThan(minOpenClose) {
		return &ValidationError{
			Field:   "low",
			Message: fmt.Sprintf("low price (%s) must be less than or equal to min(open, close) (%s)", low, minOpenClose),
		}
	}

	if c.Pair == "" {
		return &ValidationError{Field: "pair", Message: "pair cannot be empty"}
	}
	if c.Interval == "" {
		return &ValidationError{Field: "interval", Message: "interval cannot be empty"}
	}

	return nil
}

// OpenDecimal returns the open price as a decimal.Decimal.
func (c *Candle) OpenDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Open)
}

// HighDecimal returns the high price as a decimal.Decimal.
func (c *Candle) HighDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.High)
}

// LowDecimal returns the low price as a decimal.Decimal.
func (c *Candle) LowDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Low)
}

// CloseDecimal returns the close price as a decimal.Decimal.
func (c *Candle) CloseDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Close)
}

// VolumeDecimal returns the volume as a decimal.Decimal.
func (c *Candle) VolumeDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Volume)
}

// Floats returns the OHLCV fields as float64 values in open, high, low,
// close, volume order. Used at the storage and charting boundaries where
// columnar files and plot series need native floats.
func (c *Candle) Floats() (open, high, low, close, volume float64, err error) {
	fields := [5]struct {
		name  string
		value string
		out   *float64
	}{
		{"open", c.Open, &open},
		{"high", c.High, &high},
		{"low", c.Low, &low},
		{"close", c.Close, &close},
		{"volume", c.Volume, &volume},
	}
	for _, f := range fields {
		d, derr := decimal.NewFromString(f.value)
		if derr != nil {
			return 0, 0, 0, 0, 0, fmt.Errorf("parse %s %q: %w", f.name, f.value, derr)
		}
		*f.out = d.InexactFloat64()
	}
	return open, high, low, close, volume, nil
}

// PriceChangePercent returns ((close - open) / open) * 100.
// Returns an error if either price fails to parse or open is zero.
func (c *Candle) PriceChangePercent() (decimal.Decimal, error) {
	open, err := c.OpenDecimal()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse open price: %w", err)
	}
	if open.IsZero() {
		return decimal.Zero, fmt.Errorf("cannot calculate percentage change with zero open price")
	}
	close, err := c.CloseDecimal()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse close price: %w", err)
	}
	hundred := decimal.NewFromInt(100)
	return close.Sub(open).Div(open).Mul(hundred), nil
}

// IsBullish reports whether the close price is above the open price.
func (c *Candle) IsBullish() (bool, error) {
	open, err := c.OpenDecimal()
	if err != nil {
		return false, fmt.Errorf("failed to parse open price: %w", err)
	}
	close, err := c.CloseDecimal()
	if err != nil {
		return false, fmt.Errorf("failed to parse close price: %w", err)
	}
	return close.GreaterThan(open), nil
}

// String implements fmt.Stringer.
func (c *Candle) String() string {
	return fmt.Sprintf("Candle{Pair: %s, Interval: %s, Timestamp: %s, O: %s, H: %s, L: %s, C: %s, V: %s}",
		c.Pair, c.Interval, c.Timestamp.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume)
}

// NewCandle creates and validates a Candle. Price and volume values are
// decimal strings; the timestamp is the start of the candle period.
func NewCandle(timestamp time.Time, open, high, low, close, volume, pair, interval string) (*Candle, error) {
	candle := &Candle{
		Timestamp: timestamp,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		Pair:      pair,
		Interval:  interval,
	}

	if err := candle.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create candle: %w", err)
	}

	return candle, nil
}
