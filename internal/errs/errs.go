// Package errs provides error classification and batch failure reporting for
// the candle pipeline. Errors are grouped into types so callers can tell
// retryable transport problems apart from permanent conditions, and batch
// operations over many symbols report one outcome per symbol instead of
// aborting on the first failure.
package errs

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Domain sentinel errors shared by the fetcher, updater, and CLI.
var (
	// ErrNoLocalData means the updater was asked to extend a dataset that was
	// never fetched. Run the fetcher for the symbol first.
	ErrNoLocalData = errors.New("no local data for symbol, run a full fetch first")

	// ErrUpToDate means the gap between the stored data and now is smaller
	// than one candle interval, so there is nothing to fetch.
	ErrUpToDate = errors.New("dataset already up to date")

	// ErrEmptyResponse means the exchange returned a well-formed but empty
	// payload for a range that was expected to contain candles.
	ErrEmptyResponse = errors.New("exchange returned no candles")

	// ErrUnsupportedPair means the symbol is not in the configured pair list.
	ErrUnsupportedPair = errors.New("unsupported trading pair")
)

// Type classifies an error for handling decisions.
type Type string

const (
	TypeNetwork     Type = "network"      // connectivity problems, retryable
	TypeTimeout     Type = "timeout"      // deadlines and timeouts, retryable
	TypeRateLimit   Type = "rate_limit"   // exchange throttling, retryable
	TypeAPI         Type = "api"          // exchange rejected the request
	TypeMalformed   Type = "malformed"    // response could not be parsed
	TypeMissingData Type = "missing_data" // local dataset absent or empty
	TypeValidation  Type = "validation"   // candle or request validation
	TypeStorage     Type = "storage"      // dataset file read/write failure
	TypeUnknown     Type = "unknown"
)

// Classified wraps an error with its type and the operation that produced it.
type Classified struct {
	Err       error
	Type      Type
	Component string
	Operation string
	Timestamp time.Time
}

// Error implements the error interface.
func (c *Classified) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", c.Component, c.Type, c.Operation, c.Err)
}

// Unwrap returns the underlying error.
func (c *Classified) Unwrap() error { return c.Err }

// Classify wraps err with a type inferred from its content and the sentinel
// errors above. Returns nil for a nil error; an already classified error is
// returned unchanged.
func Classify(err error, component, operation string) *Classified {
	if err == nil {
		return nil
	}
	var already *Classified
	if errors.As(err, &already) {
		return already
	}

	return &Classified{
		Err:       err,
		Type:      typeOf(err),
		Component: component,
		Operation: operation,
		Timestamp: time.Now(),
	}
}

func typeOf(err error) Type {
	switch {
	case errors.Is(err, ErrNoLocalData), errors.Is(err, ErrEmptyResponse):
		return TypeMissingData
	case errors.Is(err, ErrUnsupportedPair):
		return TypeValidation
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return TypeTimeout
		}
		return TypeNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return TypeRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return TypeTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no route to host"), strings.Contains(msg, "dns"):
		return TypeNetwork
	case strings.Contains(msg, "parse"), strings.Contains(msg, "unmarshal"),
		strings.Contains(msg, "malformed"), strings.Contains(msg, "unexpected response"):
		return TypeMalformed
	case strings.Contains(msg, "validation"):
		return TypeValidation
	case strings.Contains(msg, "server error"), strings.Contains(msg, "api error"):
		return TypeAPI
	}
	return TypeUnknown
}

// Retryable reports whether an error type is worth retrying. Only transient
// transport conditions qualify; API rejections, malformed payloads, and
// missing local data will not get better on a second attempt.
func Retryable(err error) bool {
	c := Classify(err, "", "")
	if c == nil {
		return false
	}
	switch c.Type {
	case TypeNetwork, TypeTimeout, TypeRateLimit:
		return true
	default:
		return false
	}
}

// TypeOf returns the classification of err, or TypeUnknown.
func TypeOf(err error) Type {
	c := Classify(err, "", "")
	if c == nil {
		return TypeUnknown
	}
	return c.Type
}
