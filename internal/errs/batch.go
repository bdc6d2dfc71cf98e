package errs

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SymbolOutcome records the result of one symbol within a batch operation.
type SymbolOutcome struct {
	Symbol   string        `json:"symbol"`
	Err      error         `json:"-"`
	Type     Type          `json:"error_type,omitempty"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped,omitempty"` // up-to-date symbols are skipped, not failed
}

// OK reports whether the symbol succeeded (skipped counts as success).
func (o SymbolOutcome) OK() bool { return o.Err == nil }

// BatchResult maps symbols to their outcomes for a multi-symbol run. One
// symbol failing never aborts the batch; the caller inspects the result to
// see which symbols need attention.
type BatchResult struct {
	RunID    string                   `json:"run_id"`
	Started  time.Time                `json:"started"`
	Finished time.Time                `json:"finished"`
	Outcomes map[string]SymbolOutcome `json:"outcomes"`
}

// NewBatchResult creates an empty result for the given run ID.
func NewBatchResult(runID string) *BatchResult {
	return &BatchResult{
		RunID:    runID,
		Started:  time.Now(),
		Outcomes: make(map[string]SymbolOutcome),
	}
}

// Record stores the outcome for a symbol, classifying any error.
func (b *BatchResult) Record(symbol string, err error, rows int, took time.Duration) {
	outcome := SymbolOutcome{
		Symbol:   symbol,
		Err:      err,
		Rows:     rows,
		Duration: took,
	}
	if err != nil {
		outcome.Type = TypeOf(err)
	}
	b.Outcomes[symbol] = outcome
}

// RecordSkipped stores an up-to-date outcome for a symbol.
func (b *BatchResult) RecordSkipped(symbol string, took time.Duration) {
	b.Outcomes[symbol] = SymbolOutcome{Symbol: symbol, Skipped: true, Duration: took}
}

// Succeeded returns the number of symbols that completed without error.
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed returns the symbols that ended in error, sorted for stable output.
func (b *BatchResult) Failed() []string {
	var failed []string
	for sym, o := range b.Outcomes {
		if !o.OK() {
			failed = append(failed, sym)
		}
	}
	sort.Strings(failed)
	return failed
}

// Summary returns a one-line human summary, e.g. "14/15 succeeded (failed: BTC-USDT)".
func (b *BatchResult) Summary() string {
	total := len(b.Outcomes)
	ok := b.Succeeded()
	if ok == total {
		return fmt.Sprintf("%d/%d succeeded", ok, total)
	}
	return fmt.Sprintf("%d/%d succeeded (failed: %s)", ok, total, strings.Join(b.Failed(), ", "))
}
