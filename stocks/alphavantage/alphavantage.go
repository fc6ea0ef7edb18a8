package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/mohammad-safakhou/aiworker/models"
)

// Client fetches daily price series from Alpha Vantage's TIME_SERIES_DAILY
// function.
type Client struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

type response struct {
	ErrorMessage string                       `json:"Error Message"`
	Note         string                       `json:"Note"`
	Series       map[string]map[string]string `json:"Time Series (Daily)"`
}

// Fetch returns up to limit daily price points for the symbol, most recent
// date first, each rendered as a single text line.
func (c Client) Fetch(ctx context.Context, symbol string, limit int) ([]models.Item, error) {
	params := url.Values{}
	params.Add("function", "TIME_SERIES_DAILY")
	params.Add("symbol", symbol)
	params.Add("apikey", c.APIKey)

	reqURL := fmt.Sprintf("%s?%s", c.Endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stock data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage error: %s", resp.Status)
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.ErrorMessage != "" {
		return nil, fmt.Errorf("alphavantage error: %s", result.ErrorMessage)
	}
	if result.Note != "" {
		// API throttling note means no usable series came back.
		return nil, fmt.Errorf("alphavantage note: %s", result.Note)
	}

	dates := make([]string, 0, len(result.Series))
	for d := range result.Series {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	var items []models.Item
	for _, date := range dates {
		if len(items) >= limit {
			break
		}
		metrics := result.Series[date]
		text := fmt.Sprintf("%s on %s: Open %s, Close %s, Volume %s",
			symbol, date, metrics["1. open"], metrics["4. close"], metrics["5. volume"])
		items = append(items, models.Item{Text: text, Source: "Alpha Vantage"})
	}
	return items, nil
}
