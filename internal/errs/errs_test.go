package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, Classify(nil, "fetcher", "fetch"))
	})

	t.Run("sentinels", func(t *testing.T) {
		assert.Equal(t, TypeMissingData, TypeOf(ErrNoLocalData))
		assert.Equal(t, TypeMissingData, TypeOf(fmt.Errorf("%w: BTC-USDT", ErrEmptyResponse)))
		assert.Equal(t, TypeValidation, TypeOf(ErrUnsupportedPair))
	})

	t.Run("message patterns", func(t *testing.T) {
		tests := []struct {
			msg  string
			want Type
		}{
			{"rate limited: Too Many Requests", TypeRateLimit},
			{"context deadline exceeded", TypeTimeout},
			{"dial tcp: connection refused", TypeNetwork},
			{"failed to parse candles response", TypeMalformed},
			{"validation error for field pair", TypeValidation},
			{"server error 502: bad gateway", TypeAPI},
			{"something odd happened", TypeUnknown},
		}
		for _, tt := range tests {
			assert.Equal(t, tt.want, TypeOf(errors.New(tt.msg)), tt.msg)
		}
	})

	t.Run("wraps with component and operation", func(t *testing.T) {
		inner := errors.New("boom")
		c := Classify(inner, "updater", "append")
		require.NotNil(t, c)
		assert.ErrorIs(t, c, inner)
		assert.Contains(t, c.Error(), "updater")
		assert.Contains(t, c.Error(), "append")
		assert.False(t, c.Timestamp.IsZero())
	})

	t.Run("already classified passes through", func(t *testing.T) {
		first := Classify(errors.New("boom"), "a", "x")
		second := Classify(fmt.Errorf("outer: %w", first), "b", "y")
		assert.Equal(t, first, second)
	})
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(errors.New("rate limited")))
	assert.True(t, Retryable(errors.New("request timeout")))
	assert.True(t, Retryable(errors.New("connection reset by peer")))

	assert.False(t, Retryable(ErrNoLocalData))
	assert.False(t, Retryable(errors.New("api error 51001")))
	assert.False(t, Retryable(errors.New("failed to unmarshal body")))
	assert.False(t, Retryable(nil))
}

func TestBatchResult(t *testing.T) {
	t.Run("records and summarizes", func(t *testing.T) {
		b := NewBatchResult("run-1")
		b.Record("BTC-USDT", nil, 100, time.Second)
		b.Record("ETH-USDT", errors.New("connection refused"), 0, time.Second)
		b.RecordSkipped("SOL-USDT", time.Millisecond)

		assert.Equal(t, 2, b.Succeeded())
		assert.Equal(t, []string{"ETH-USDT"}, b.Failed())
		assert.Equal(t, "2/3 succeeded (failed: ETH-USDT)", b.Summary())

		assert.True(t, b.Outcomes["SOL-USDT"].Skipped)
		assert.True(t, b.Outcomes["SOL-USDT"].OK())
		assert.Equal(t, TypeNetwork, b.Outcomes["ETH-USDT"].Type)
		assert.Equal(t, 100, b.Outcomes["BTC-USDT"].Rows)
	})

	t.Run("all succeeded", func(t *testing.T) {
		b := NewBatchResult("run-2")
		b.Record("BTC-USDT", nil, 1, 0)
		assert.Equal(t, "1/1 succeeded", b.Summary())
		assert.Empty(t, b.Failed())
	})

	t.Run("failed list is sorted", func(t *testing.T) {
		b := NewBatchResult("run-3")
		b.Record("ETH-USDT", context.Canceled, 0, 0)
		b.Record("ADA-USDT", context.Canceled, 0, 0)
		b.Record("BTC-USDT", context.Canceled, 0, 0)
		assert.Equal(t, []string{"ADA-USDT", "BTC-USDT", "ETH-USDT"}, b.Failed())
	})
}
