// OKX exchange adapter.
//
// Uses the public market data endpoints (no authentication): the recent
// candle endpoint for ranges near the present and the history endpoint for
// deep backfills. Both page in fixed-size batches of at most 300 rows,
// newest first, with millisecond-timestamp cursors. The adapter applies
// client-side rate limiting and retries throttled or failing requests with
// exponential backoff.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/quantfeed/candlekeep/internal/config"
	"github.com/quantfeed/candlekeep/internal/models"
)

const (
	okxDefaultBaseURL = "https://www.okx.com"

	// API endpoints
	candlesEndpoint        = "/api/v5/market/candles"
	historyCandlesEndpoint = "/api/v5/market/history-candles"
	serverTimeEndpoint     = "/api/v5/public/time"

	// The recent-candle endpoint only serves roughly the last 1440 bars;
	// anything starting further back goes through the history endpoint.
	recentWindow = 24 * time.Hour

	maxRowsPerRequest = 300

	// Retry configuration for throttled and failing requests.
	maxRetries        = 3
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
	retryMultiplier   = 2.0
	retryJitter       = 0.5

	healthCheckTimeout = 5 * time.Second

	// OKX business code for "requests too frequent".
	okxCodeRateLimited = "50011"
)

// OKXAdapter implements the Adapter interface against the OKX v5 REST API.
type OKXAdapter struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	pageLimit   int
	logger      *slog.Logger
}

// NewOKXAdapter creates an adapter from the exchange configuration.
func NewOKXAdapter(cfg config.ExchangeConfig, logger *slog.Logger) *OKXAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = okxDefaultBaseURL
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 || pageLimit > maxRowsPerRequest {
		pageLimit = maxRowsPerRequest
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	timeout := 15 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil {
			timeout = d
		}
	}

	return &OKXAdapter{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:     baseURL,
		pageLimit:   pageLimit,
		logger:      logger,
	}
}

// FetchCandles implements the CandleFetcher interface.
//
// Pages backwards from req.End using the `after` cursor until the range is
// covered, then returns the candles oldest first. Rows that fail to parse or
// validate are skipped with a warning; unconfirmed (still-forming) candles
// are never returned.
func (o *OKXAdapter) FetchCandles(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	bar, err := convertInterval(req.Interval)
	if err != nil {
		return nil, fmt.Errorf("unsupported interval: %w", err)
	}

	endpoint := historyCandlesEndpoint
	if time.Since(req.Start) < recentWindow {
		endpoint = candlesEndpoint
	}

	o.logger.Debug("fetching candles from OKX",
		"pair", req.Pair,
		"start", req.Start,
		"end", req.End,
		"interval", req.Interval,
		"endpoint", endpoint)

	collected := make([]models.Candle, 0)
	after := req.End.UnixMilli()
	startMilli := req.Start.UnixMilli()

	for {
		if err := o.WaitForLimit(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}

		rows, err := o.fetchPage(ctx, endpoint, req.Pair, bar, after)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		// Rows arrive newest first; the oldest row drives the next cursor.
		pageDone := false
		for _, row := range rows {
			candle, ts, err := o.convertRow(row, req.Pair, req.Interval)
			if err != nil {
				o.logger.Warn("skipping malformed candle row", "pair", req.Pair, "error", err)
				continue
			}
			if ts < startMilli {
				pageDone = true
				continue
			}
			if ts >= req.End.UnixMilli() {
				continue
			}
			if candle == nil {
				// Unconfirmed bar, never persisted.
				continue
			}
			collected = append(collected, *candle)
		}

		oldest, ok := oldestTimestamp(rows)
		if !ok || oldest <= startMilli || pageDone {
			break
		}
		after = oldest

		if req.Limit > 0 && len(collected) >= req.Limit {
			break
		}
	}

	models.SortByTime(collected)
	collected = models.DedupeKeepLast(collected)
	if req.Limit > 0 && len(collected) > req.Limit {
		collected = collected[len(collected)-req.Limit:]
	}

	o.logger.Debug("fetched candles", "pair", req.Pair, "count", len(collected))

	return &FetchResponse{
		Candles:   collected,
		RateLimit: o.rateLimitStatus(),
	}, nil
}

// GetLimits implements the RateLimitInfo interface.
func (o *OKXAdapter) GetLimits() RateLimit {
	return RateLimit{
		RequestsPerSecond: float64(o.rateLimiter.Limit()),
		BurstSize:         o.rateLimiter.Burst(),
		WindowDuration:    time.Second,
	}
}

// WaitForLimit implements the RateLimitInfo interface.
func (o *OKXAdapter) WaitForLimit(ctx context.Context) error {
	return o.rateLimiter.Wait(ctx)
}

// HealthCheck probes the public server-time endpoint.
func (o *OKXAdapter) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, o.baseURL+serverTimeEndpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}

// fetchPage requests one page of candle rows older than the after cursor.
func (o *OKXAdapter) fetchPage(ctx context.Context, endpoint, pair, bar string, after int64) ([][]string, error) {
	params := url.Values{}
	params.Set("instId", pair)
	params.Set("bar", bar)
	params.Set("limit", strconv.Itoa(o.pageLimit))
	params.Set("after", strconv.FormatInt(after, 10))

	body, err := o.getWithRetry(ctx, o.baseURL+endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var envelope okxResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse candles response: %w", err)
	}
	if envelope.Code != "0" {
		return nil, fmt.Errorf("api error %s: %s", envelope.Code, envelope.Msg)
	}
	return envelope.Data, nil
}

// getWithRetry performs a GET with exponential backoff. Throttling (HTTP 429
// or business code 50011) and server errors are retried; other client errors
// are permanent.
func (o *OKXAdapter) getWithRetry(ctx context.Context, requestURL string) ([]byte, error) {
	backoffConfig := backoff.NewExponentialBackOff()
	backoffConfig.InitialInterval = initialRetryDelay
	backoffConfig.MaxInterval = maxRetryDelay
	backoffConfig.Multiplier = retryMultiplier
	backoffConfig.RandomizationFactor = retryJitter
	backoffConfig.MaxElapsedTime = 0 // rely on the context for the overall deadline

	policy := backoff.WithContext(backoff.WithMaxRetries(backoffConfig, maxRetries), ctx)

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "candlekeep/1.0")

		resp, err := o.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			if retryAfter > 0 {
				o.logger.Warn("rate limited by exchange, waiting", "retry_after", retryAfter)
				select {
				case <-time.After(retryAfter):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
			return fmt.Errorf("rate limited")
		}

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d: %s", resp.StatusCode, string(payload))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("client error %d: %s", resp.StatusCode, string(payload)))
		}

		// Throttling can also surface as an HTTP 200 with a business code.
		var probe struct {
			Code string `json:"code"`
			Msg  string `json:"msg"`
		}
		if err := json.Unmarshal(payload, &probe); err == nil && probe.Code == okxCodeRateLimited {
			o.logger.Warn("rate limited by exchange", "code", probe.Code, "msg", probe.Msg)
			return fmt.Errorf("rate limited: %s", probe.Msg)
		}

		body = payload
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, header); err == nil {
		return time.Until(t)
	}
	return 0
}

// convertInterval maps standard interval notation to an OKX bar value.
func convertInterval(interval string) (string, error) {
	switch interval {
	case "1m":
		return "1m", nil
	case "5m":
		return "5m", nil
	case "15m":
		return "15m", nil
	case "1h":
		return "1H", nil
	case "4h":
		return "4H", nil
	case "1d":
		return "1D", nil
	default:
		return "", fmt.Errorf("unsupported interval: %s", interval)
	}
}

// convertRow turns one OKX data row into a validated candle. Rows are
// [ts, open, high, low, close, vol, volCcy, volCcyQuote, confirm] with every
// field as a string. Returns a nil candle (no error) for unconfirmed bars.
func (o *OKXAdapter) convertRow(row []string, pair, interval string) (*models.Candle, int64, error) {
	if len(row) < 6 {
		return nil, 0, fmt.Errorf("unexpected response row with %d fields", len(row))
	}

	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid timestamp %q: %w", row[0], err)
	}

	if len(row) >= 9 && row[8] == "0" {
		// The bar is still forming; skip it so only completed candles are
		// ever persisted.
		return nil, ts, nil
	}

	candle, err := models.NewCandle(
		time.UnixMilli(ts).UTC(),
		row[1], // open
		row[2], // high
		row[3], // low
		row[4], // close
		row[5], // volume
		pair,
		interval,
	)
	if err != nil {
		return nil, ts, err
	}
	return candle, ts, nil
}

func oldestTimestamp(rows [][]string) (int64, bool) {
	oldest := int64(0)
	found := false
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		if !found || ts < oldest {
			oldest = ts
			found = true
		}
	}
	return oldest, found
}

func (o *OKXAdapter) rateLimitStatus() RateLimitStatus {
	tokens := int(o.rateLimiter.Tokens())
	if tokens < 0 {
		tokens = 0
	}
	reservation := o.rateLimiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()

	return RateLimitStatus{
		Remaining:  tokens,
		RetryAfter: delay,
	}
}

// okxResponse is the OKX v5 API envelope. Candle rows are arrays of strings.
type okxResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}
