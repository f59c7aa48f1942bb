// Package kite implements the brokerage-facing quote source. Only the two
// read capabilities the scanner needs are covered: latest quote and candle
// history. Sessions, orders and the login handshake live outside this
// service.
package kite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"NiftyScan/internal/domain/models"
	drepo "NiftyScan/internal/domain/repository"
	xhttp "NiftyScan/pkg/http"
)

// Client implements repository.QuoteSource against the Kite Connect REST API.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	http        *xhttp.Client
}

// New creates a quote source client. The access token must already have been
// obtained by the surrounding login flow.
func New(baseURL, apiKey, accessToken string, timeout time.Duration) drepo.QuoteSource {
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		accessToken: accessToken,
		http:        xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type candlesResponse struct {
	Status string `json:"status"`
	Data   struct {
		Candles [][]interface{} `json:"candles"`
	} `json:"data"`
}

// FetchHistory returns up to lookback bars, timestamp ascending.
func (c *Client) FetchHistory(ctx context.Context, token string, interval models.Interval, lookback int) ([]models.Bar, error) {
	to := time.Now()
	from := to.Add(-historySpan(interval, lookback))

	url := fmt.Sprintf("%s/instruments/historical/%s/%s", c.baseURL, token, interval)
	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     url,
		Headers: c.headers(),
		QueryParams: map[string][]string{
			"from": {from.Format("2006-01-02 15:04:05")},
			"to":   {to.Format("2006-01-02 15:04:05")},
		},
	})
	if err != nil {
		return nil, mapTransportErr(err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp); err != nil {
		return nil, err
	}

	var body candlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}

	bars := make([]models.Bar, 0, len(body.Data.Candles))
	for _, c := range body.Data.Candles {
		bar, err := parseCandle(c)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	if lookback > 0 && len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}
	return bars, nil
}

// FetchLatest returns the most recent bar for the instrument.
func (c *Client) FetchLatest(ctx context.Context, token string) (models.Bar, error) {
	bars, err := c.FetchHistory(ctx, token, models.IntervalFiveMinute, 2)
	if err != nil {
		return models.Bar{}, err
	}
	if len(bars) == 0 {
		return models.Bar{}, drepo.ErrNotFound
	}
	return bars[len(bars)-1], nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"X-Kite-Version": "3",
		"Authorization":  fmt.Sprintf("token %s:%s", c.apiKey, c.accessToken),
	}
}

// historySpan converts a bar count to a wall-clock fetch window, padded so
// weekends and session gaps do not shorten the series.
func historySpan(interval models.Interval, lookback int) time.Duration {
	switch interval {
	case models.IntervalDay:
		return time.Duration(lookback*2+4) * 24 * time.Hour
	default:
		return time.Duration(lookback*5*3) * time.Minute
	}
}

func parseCandle(raw []interface{}) (models.Bar, error) {
	if len(raw) < 6 {
		return models.Bar{}, fmt.Errorf("malformed candle: %v", raw)
	}
	tsStr, ok := raw[0].(string)
	if !ok {
		return models.Bar{}, fmt.Errorf("malformed candle timestamp: %v", raw[0])
	}
	ts, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return models.Bar{}, fmt.Errorf("parse candle timestamp: %w", err)
	}
	nums := make([]float64, 5)
	for i := 0; i < 5; i++ {
		f, ok := raw[i+1].(float64)
		if !ok {
			return models.Bar{}, fmt.Errorf("malformed candle field %d: %v", i+1, raw[i+1])
		}
		nums[i] = f
	}
	return models.Bar{
		Timestamp: ts,
		Open:      nums[0],
		High:      nums[1],
		Low:       nums[2],
		Close:     nums[3],
		Volume:    nums[4],
	}, nil
}

// mapStatus converts HTTP status codes to the adapter error taxonomy and
// drains the body for reuse of the connection.
func mapStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return drepo.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return drepo.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return drepo.ErrRateLimited
	default:
		// Anything else (5xx, odd 4xx) is treated as transient per the
		// adapter contract.
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("kite: status %d (%s): %w", resp.StatusCode, body, drepo.ErrTimeout)
	}
}

func mapTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return drepo.ErrTimeout
	}
	return fmt.Errorf("%w: %v", drepo.ErrTimeout, err)
}
