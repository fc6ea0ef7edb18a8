// Package local_provider is the in-process fallback used when the hosted
// provider is unreachable. Embeddings are deterministic hashed bag-of-words
// vectors; completions return a plain restatement of the grounded context.
// It exists so the pipeline can keep answering (degraded) without network.
package local_provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

type client struct {
	dim int
}

// NewClient creates a local fallback provider producing vectors of the given
// dimension.
func NewClient(dim int) *client {
	if dim <= 0 {
		dim = 384
	}
	return &client{dim: dim}
}

func (c *client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = c.embed(t)
	}
	return vecs, nil
}

// embed buckets lowercased tokens by FNV hash and L2-normalizes the counts.
// The same text always produces the same vector.
func (c *client) embed(text string) []float32 {
	vec := make([]float32, c.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%c.dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func (c *client) Completion(ctx context.Context, prompt string, contextStr string) (string, error) {
	var b strings.Builder
	b.WriteString("I could not reach the language model provider, so here is the most relevant information I have")
	q := strings.TrimSpace(prompt)
	if q != "" {
		fmt.Fprintf(&b, " for %q", q)
	}
	b.WriteString(".")
	if ctxStr := strings.TrimSpace(contextStr); ctxStr != "" {
		b.WriteString("\n\n")
		b.WriteString(ctxStr)
	}
	return b.String(), nil
}
