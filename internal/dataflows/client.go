// Package dataflows provides the market data vendor adapters backing
// the static tool set. Each adapter wraps one vendor HTTP API behind a
// fixed contract so tool schemas stay stable regardless of vendor.
package dataflows

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tradenerd/internal/logging"
)

// Vendor wraps one market data vendor endpoint.
type Vendor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewVendor creates a vendor adapter. Timeout defaults to 30s.
func NewVendor(baseURL, apiKey string, timeout time.Duration) *Vendor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Vendor{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// get fetches a vendor path and returns the response body as text.
func (v *Vendor) get(ctx context.Context, path string, params url.Values) (string, error) {
	if v.baseURL == "" {
		return "", fmt.Errorf("vendor not configured")
	}

	u := v.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	start := time.Now()
	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vendor request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read vendor response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vendor returned status %d: %s", resp.StatusCode, string(body))
	}

	logging.Get(logging.CategoryDataflows).Debug("GET %s took %v (%d bytes)", path, time.Since(start), len(body))
	return string(body), nil
}

// Client bundles the four vendor adapters consumed by the static tools.
type Client struct {
	Prices       *Vendor
	Fundamentals *Vendor
	News         *Vendor
	Social       *Vendor
}

// NewClient assembles a client from vendor adapters.
func NewClient(prices, fundamentals, news, social *Vendor) *Client {
	return &Client{
		Prices:       prices,
		Fundamentals: fundamentals,
		News:         news,
		Social:       social,
	}
}

// GetStockData returns OHLCV price history for a ticker over a window.
func (c *Client) GetStockData(ctx context.Context, ticker, startDate, endDate string) (string, error) {
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("start_date", startDate)
	params.Set("end_date", endDate)
	return c.Prices.get(ctx, "/prices", params)
}

// GetIndicators returns technical indicator values for a ticker.
func (c *Client) GetIndicators(ctx context.Context, ticker, date string, lookBackDays int) (string, error) {
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("date", date)
	params.Set("look_back_days", strconv.Itoa(lookBackDays))
	return c.Prices.get(ctx, "/indicators", params)
}

// GetFundamentals returns the fundamentals summary for a ticker.
func (c *Client) GetFundamentals(ctx context.Context, ticker, date string) (string, error) {
	return c.Fundamentals.get(ctx, "/fundamentals", tickerDate(ticker, date))
}

// GetBalanceSheet returns the most recent balance sheet.
func (c *Client) GetBalanceSheet(ctx context.Context, ticker, date string) (string, error) {
	return c.Fundamentals.get(ctx, "/balance-sheet", tickerDate(ticker, date))
}

// GetCashflow returns the most recent cash flow statement.
func (c *Client) GetCashflow(ctx context.Context, ticker, date string) (string, error) {
	return c.Fundamentals.get(ctx, "/cashflow", tickerDate(ticker, date))
}

// GetIncomeStatement returns the most recent income statement.
func (c *Client) GetIncomeStatement(ctx context.Context, ticker, date string) (string, error) {
	return c.Fundamentals.get(ctx, "/income-statement", tickerDate(ticker, date))
}

// GetNews returns targeted news for a query over a date window.
func (c *Client) GetNews(ctx context.Context, query, startDate, endDate string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("start_date", startDate)
	params.Set("end_date", endDate)
	return c.News.get(ctx, "/news", params)
}

// GetGlobalNews returns broad macroeconomic news up to a date.
func (c *Client) GetGlobalNews(ctx context.Context, date string, lookBackDays, limit int) (string, error) {
	params := url.Values{}
	params.Set("date", date)
	params.Set("look_back_days", strconv.Itoa(lookBackDays))
	params.Set("limit", strconv.Itoa(limit))
	return c.News.get(ctx, "/global-news", params)
}

// GetSocialSentiment returns aggregated social media sentiment.
func (c *Client) GetSocialSentiment(ctx context.Context, ticker, date string) (string, error) {
	return c.Social.get(ctx, "/sentiment", tickerDate(ticker, date))
}

func tickerDate(ticker, date string) url.Values {
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("date", date)
	return params
}
