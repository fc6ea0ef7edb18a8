package googlecse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/aiworker/models"
)

// Search queries a Google Custom Search Engine.
// https://developers.google.com/custom-search/v1/overview
type Search struct {
	APIKey     string
	CX         string
	Endpoint   string
	HTTPClient *http.Client
}

func (s Search) Search(ctx context.Context, q string, limit int) ([]models.Item, error) {
	params := url.Values{}
	params.Add("q", q)
	params.Add("key", s.APIKey)
	params.Add("cx", s.CX)

	reqURL := fmt.Sprintf("%s?%s", s.Endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpClient := s.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google cse error: %s", resp.Status)
	}

	var raw struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var out []models.Item
	for _, it := range raw.Items {
		if len(out) >= limit {
			break
		}
		text := strings.TrimSpace(strings.TrimSpace(it.Title) + " " + strings.TrimSpace(it.Snippet))
		if text == "" {
			continue
		}
		source := it.Link
		if source == "" {
			source = "unknown"
		}
		out = append(out, models.Item{Text: text, Source: source})
	}
	return out, nil
}
