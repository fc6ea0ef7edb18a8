package gemini_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const apiBase = "https://generativelanguage.googleapis.com/v1beta/models"

// client implements the provider interface using the Gemini REST API.
type client struct {
	apiKey          string
	completionModel string
	embeddingModel  string
	httpClient      *http.Client
}

// NewClient creates a new Gemini client.
func NewClient(apiKey, completionModel, embeddingModel string, timeout time.Duration) *client {
	return &client{
		apiKey:          apiKey,
		completionModel: completionModel,
		embeddingModel:  embeddingModel,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// CreateEmbedding generates embeddings for the given texts via batchEmbedContents.
func (c *client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	type embedRequest struct {
		Model   string  `json:"model"`
		Content content `json:"content"`
	}
	reqs := make([]embedRequest, len(texts))
	for i, t := range texts {
		reqs[i] = embedRequest{
			Model:   "models/" + c.embeddingModel,
			Content: content{Parts: []part{{Text: t}}},
		}
	}

	jsonData, err := json.Marshal(map[string]interface{}{"requests": reqs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents?key=%s", apiBase, c.embeddingModel, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var embResp struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	vecs := make([][]float32, len(embResp.Embeddings))
	for i, e := range embResp.Embeddings {
		vecs[i] = e.Values
	}
	return vecs, nil
}

// Completion generates a Markdown-style answer grounded in the given context.
func (c *client) Completion(ctx context.Context, prompt string, contextStr string) (string, error) {
	fullPrompt := fmt.Sprintf(`You are a helpful coding and knowledge tutor.
Answer clearly in **Markdown format**.

If the question is about programming:
- Show the code inside a fenced code block.
- Add an explanation section with bullet points.
- Provide steps to run/compile if relevant.

If the question is general (not about code):
- Just answer naturally in Markdown.

Context:
%s

Question:
%s

Answer:
`, contextStr, prompt)

	requestBody := map[string]interface{}{
		"contents": []content{{Parts: []part{{Text: fullPrompt}}}},
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", apiBase, c.completionModel, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var genResp struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	return strings.TrimSpace(genResp.Candidates[0].Content.Parts[0].Text), nil
}
