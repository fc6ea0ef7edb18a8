package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mohammad-safakhou/aiworker/models"
)

// Index talks to a Pinecone serverless index over its data-plane REST API.
// IndexHost is the index-specific host URL from the Pinecone console.
type Index struct {
	APIKey     string
	IndexHost  string
	HTTPClient *http.Client
}

type vectorPayload struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata"`
}

// Upsert writes embedded chunks into the index. IDs are "doc__chunk" so
// repeated ingestion of the same chunk overwrites in place.
func (p *Index) Upsert(ctx context.Context, vectors []models.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	payload := make([]vectorPayload, len(vectors))
	for i, v := range vectors {
		payload[i] = vectorPayload{
			ID:     fmt.Sprintf("%s__%s", v.DocID, v.ChunkID),
			Values: v.Values,
			Metadata: map[string]string{
				"doc_id":   v.DocID,
				"chunk_id": fmt.Sprintf("%s__%s", v.DocID, v.ChunkID),
				"text":     v.Text,
				"source":   v.Source,
				"provider": v.Provider,
			},
		}
	}

	body, err := json.Marshal(map[string]interface{}{"vectors": payload})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	var resp struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	return p.post(ctx, "/vectors/upsert", body, &resp)
}

// Query returns up to topK similarity matches for the vector.
func (p *Index) Query(ctx context.Context, vector []float32, topK int) ([]models.Match, error) {
	body, err := json.Marshal(map[string]interface{}{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var raw struct {
		Matches []struct {
			ID       string            `json:"id"`
			Score    float64           `json:"score"`
			Metadata map[string]string `json:"metadata"`
		} `json:"matches"`
	}
	if err := p.post(ctx, "/query", body, &raw); err != nil {
		return nil, err
	}

	out := make([]models.Match, 0, len(raw.Matches))
	for _, m := range raw.Matches {
		out = append(out, models.Match{
			Text:   m.Metadata["text"],
			Source: m.Metadata["source"],
			Score:  m.Score,
		})
	}
	return out, nil
}

func (p *Index) post(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "POST", p.IndexHost+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.APIKey)

	httpClient := p.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pinecone returned status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
