// Package rest is the HTTP client for the history API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"charting-terminalv1/internal/model"
)

// maxErrorBody caps how much of an error response is kept in the error.
const maxErrorBody = 512

// Config configures the history client.
type Config struct {
	BaseURL string        // e.g. "http://localhost:8080"
	Timeout time.Duration // transport-level ceiling; callers add per-request deadlines
}

// Client fetches candles from GET {base}/api/markets/{marketId}/candles.
type Client struct {
	base string
	http *http.Client
}

// New creates a history client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// candlesResponse accepts both {"candles": [...]} and a bare array.
type candlesResponse struct {
	Candles []model.Candle `json:"candles"`
}

// FetchCandles implements model.CandleFetcher. Network failures and 5xx/429
// responses are retriable; other non-2xx responses are not.
func (c *Client) FetchCandles(ctx context.Context, marketID string, tf model.Timeframe, limit int, endTimeExclusive int64) ([]model.Candle, error) {
	op := "candles"
	if endTimeExclusive > 0 {
		op = "backfill"
	}
	fail := func(status int, err error, retriable bool) error {
		return &model.FetchError{Op: op, MarketID: marketID, Timeframe: tf, Status: status, Err: err, Retriable: retriable}
	}

	q := url.Values{}
	q.Set("interval", tf.String())
	q.Set("limit", strconv.Itoa(limit))
	if endTimeExclusive > 0 {
		q.Set("endTime", strconv.FormatInt(endTimeExclusive, 10))
	}
	u := fmt.Sprintf("%s/api/markets/%s/candles?%s", c.base, url.PathEscape(marketID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fail(0, err, false)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Caller cancellation is final; timeouts and transport errors are not.
		return nil, fail(0, err, !errors.Is(err, context.Canceled))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		retriable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, fail(resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))), retriable)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("read body: %w", err), true)
	}
	candles, err := decodeCandles(raw)
	if err != nil {
		return nil, fail(resp.StatusCode, err, false)
	}
	return candles, nil
}

func decodeCandles(raw []byte) ([]model.Candle, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var out []model.Candle
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode candles: %w", err)
		}
		return out, nil
	}
	var wrapped candlesResponse
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}
	return wrapped.Candles, nil
}
