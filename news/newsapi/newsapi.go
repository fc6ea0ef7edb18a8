package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/aiworker/models"
)

type article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

type response struct {
	Status       string    `json:"status"`
	TotalResults int       `json:"totalResults"`
	Articles     []article `json:"articles"`
}

// Client fetches recent English-language articles from NewsAPI's
// /v2/everything endpoint.
type Client struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

// Fetch returns up to limit articles for the topic, newest first. Each item's
// text is the title joined with the description; items with neither are
// dropped.
func (c Client) Fetch(ctx context.Context, topic string, limit int) ([]models.Item, error) {
	params := url.Values{}
	params.Add("q", topic)
	params.Add("language", "en")
	params.Add("sortBy", "publishedAt")
	params.Add("pageSize", strconv.Itoa(limit))
	params.Add("apiKey", c.APIKey)

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
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi error: %s", resp.Status)
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("newsapi status: %s", result.Status)
	}

	var items []models.Item
	for _, art := range result.Articles {
		if len(items) >= limit {
			break
		}
		text := strings.TrimSpace(strings.TrimSpace(art.Title) + " " + strings.TrimSpace(art.Description))
		if text == "" {
			continue
		}
		source := art.URL
		if source == "" {
			source = "unknown"
		}
		items = append(items, models.Item{Text: text, Source: source})
	}
	return items, nil
}
