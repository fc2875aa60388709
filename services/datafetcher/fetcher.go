package datafetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go_signal_engine/services/bars"
)

// ProviderError marks an unreachable or non-success response from the
// external price source. Carries the HTTP status when one was received.
// Provider failures are retried on the next scheduled tick, never
// immediately.
type ProviderError struct {
	Symbol     string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error for %s (status %d)", e.Symbol, e.StatusCode)
	}
	return fmt.Sprintf("provider error for %s: %v", e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// priceResponse represents the provider's daily price payload
type priceResponse struct {
	Data []struct {
		Code   string  `json:"code"`
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume float64 `json:"nmVolume"`
	} `json:"data"`
	TotalElements int `json:"totalElements"`
}

// Client fetches daily OHLCV history from the external price provider
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	workers    int
}

// NewClient creates a new provider client
func NewClient(baseURL string, timeout time.Duration, workers int, logger *zap.Logger) *Client {
	if workers <= 0 {
		workers = 1
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		workers:    workers,
	}
}

// FetchDailyHistory fetches daily bars for one symbol between startDate and
// endDate inclusive, oldest first. Bars are tagged with the import source.
func (c *Client) FetchDailyHistory(ctx context.Context, symbol string, startDate, endDate time.Time) ([]bars.Bar, error) {
	url := fmt.Sprintf("%s?sort=date:asc&q=code:%s~date:gte:%s~date:lte:%s&size=1000",
		c.baseURL, symbol, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ProviderError{Symbol: symbol, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &ProviderError{Symbol: symbol, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Symbol: symbol, Err: err}
	}

	var payload priceResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ProviderError{Symbol: symbol, Err: fmt.Errorf("parse response: %w", err)}
	}

	out := make([]bars.Bar, 0, len(payload.Data))
	for _, row := range payload.Data {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			c.logger.Warn("skipping bar with bad date",
				zap.String("symbol", symbol),
				zap.String("date", row.Date))
			continue
		}
		out = append(out, bars.Bar{
			Symbol: symbol,
			Date:   bars.Day(date),
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: int64(row.Volume),
			Source: bars.SourceImport,
		})
	}
	return out, nil
}

// FetchResult is the outcome of one symbol in a fan-out fetch.
type FetchResult struct {
	Symbol string
	Bars   []bars.Bar
	Err    error
}

// FetchAll fetches daily history for every symbol with bounded parallelism.
// Individual provider failures are collected per symbol, not propagated; the
// scan decides what to record for each.
func (c *Client) FetchAll(ctx context.Context, symbols []string, startDate, endDate time.Time) []FetchResult {
	results := make([]FetchResult, len(symbols))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, symbol := range symbols {
		g.Go(func() error {
			series, err := c.FetchDailyHistory(ctx, symbol, startDate, endDate)
			mu.Lock()
			results[i] = FetchResult{Symbol: symbol, Bars: series, Err: err}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}
