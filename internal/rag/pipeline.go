package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode"

	"github.com/mohammad-safakhou/aiworker/internal/ratelimit"
	"github.com/mohammad-safakhou/aiworker/internal/store"
	"github.com/mohammad-safakhou/aiworker/models"
	"github.com/mohammad-safakhou/aiworker/provider"
)

// ErrInvalidInput is returned when a query normalizes down to nothing.
var ErrInvalidInput = errors.New("invalid input: query is empty after normalization")

// DefaultSymbol is the stock fallback when neither the classifier nor the
// query text yields a ticker.
const DefaultSymbol = "AAPL"

const (
	vectorTopK  = 5
	newsLimit   = 10
	stockLimit  = 5
	searchLimit = 5
)

// VectorIndex is the similarity-search capability the pipeline consumes.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int) ([]models.Match, error)
}

// Fetcher pulls up to limit items for a query from one external data source.
type Fetcher interface {
	Fetch(ctx context.Context, query string, limit int) ([]models.Item, error)
}

// ContextStore persists and recalls per-session context snapshots.
type ContextStore interface {
	LatestContext(ctx context.Context, sessionID string) (*store.ContextMap, error)
	SaveContext(ctx context.Context, sessionID string, data *store.ContextMap) error
}

// Answer is the full result of one ask cycle.
type Answer struct {
	Query       string `json:"query"`
	Answer      string `json:"answer"`
	Intent      string `json:"intent"`
	Entity      string `json:"entity"`
	ContextUsed string `json:"context_used"`
}

// Pipeline composes retrieval, intent routing, rate-limited fetching and
// completion into one question-answering cycle.
type Pipeline struct {
	Provider provider.Provider
	Index    VectorIndex
	News     Fetcher
	Stocks   Fetcher
	Search   Fetcher
	Limiter  *ratelimit.Limiter
	Contexts ContextStore
	Logger   *log.Logger
}

var (
	spaceRe  = regexp.MustCompile(`\s+`)
	denyRe   = regexp.MustCompile(`[^\w\s,]`)
	tickerRe = regexp.MustCompile(`\b[A-Za-z0-9]{1,5}\b`)
)

// Ask answers one query for a session. Retrieval and fetch failures degrade
// to empty context; only invalid input, a rate-limit hit and the final
// completion call can fail the request.
func (p *Pipeline) Ask(ctx context.Context, sessionID, query string) (*Answer, error) {
	q := normalizeQuery(query)
	if q == "" {
		return nil, ErrInvalidInput
	}

	prior, err := p.Contexts.LatestContext(ctx, sessionID)
	if err != nil {
		p.logf("loading context for session %s failed: %v", sessionID, err)
		prior = store.NewContextMap()
	}

	retrieved := p.retrieve(ctx, q)
	intent, entity := p.classifyIntent(ctx, q)

	fetched, err := p.dispatch(ctx, intent, entity, q)
	if err != nil {
		return nil, err
	}

	history := formatHistory(prior)
	enriched := composeContext(history, q, retrieved, intent, fetched)

	answer, err := p.Provider.Completion(ctx, q, enriched)
	if err != nil {
		return nil, fmt.Errorf("answer generation: %w", err)
	}

	prior.Set(q, answer)
	if err := p.Contexts.SaveContext(ctx, sessionID, prior); err != nil {
		p.logf("saving context for session %s failed: %v", sessionID, err)
	}

	return &Answer{
		Query:       q,
		Answer:      answer,
		Intent:      intent,
		Entity:      entity,
		ContextUsed: history,
	}, nil
}

// retrieve embeds the query and pulls similar passages. Never fatal.
func (p *Pipeline) retrieve(ctx context.Context, query string) string {
	if p.Index == nil {
		return ""
	}
	vecs, err := p.Provider.CreateEmbedding(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		p.logf("embedding for retrieval failed: %v", err)
		return ""
	}
	matches, err := p.Index.Query(ctx, vecs[0], vectorTopK)
	if err != nil {
		p.logf("vector query failed: %v", err)
		return ""
	}
	var texts []string
	for _, m := range matches {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	if len(texts) == 0 {
		return ""
	}
	return strings.Join(texts, "\n")
}

// dispatch runs the intent-specific external fetch. A rate-limit hit fails the
// request; fetch errors degrade to empty results.
func (p *Pipeline) dispatch(ctx context.Context, intent, entity, query string) (string, error) {
	switch intent {
	case IntentNews:
		if err := p.Limiter.Check(IntentNews); err != nil {
			return "", err
		}
		topic := entity
		if topic == "" {
			topic = query
		}
		items := p.fetch(ctx, p.News, topic, newsLimit)
		return joinTexts(items), nil

	case IntentStock:
		if err := p.Limiter.Check(IntentStock); err != nil {
			return "", err
		}
		symbol := resolveSymbol(entity, query)
		items := p.fetch(ctx, p.Stocks, symbol, stockLimit)
		return joinTexts(items), nil

	case IntentSearch:
		if err := p.Limiter.Check(IntentSearch); err != nil {
			return "", err
		}
		var lines []string
		for _, sub := range splitSubQueries(query) {
			for _, it := range p.fetch(ctx, p.Search, sub, searchLimit) {
				lines = append(lines, fmt.Sprintf("- %s (Source: %s)", it.Text, it.Source))
			}
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", nil
}

func (p *Pipeline) fetch(ctx context.Context, f Fetcher, query string, limit int) []models.Item {
	if f == nil {
		return nil
	}
	items, err := f.Fetch(ctx, query, limit)
	if err != nil {
		p.logf("fetch for %q failed: %v", query, err)
		return nil
	}
	return items
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.Logger != nil {
		p.Logger.Printf("[RAG] "+format, args...)
	}
}

// normalizeQuery trims, collapses whitespace runs to single spaces, and
// drops every character outside word characters, whitespace and commas.
func normalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	q = spaceRe.ReplaceAllString(q, " ")
	q = denyRe.ReplaceAllString(q, "")
	return strings.TrimSpace(q)
}

// resolveSymbol prefers the classifier's entity uppercased, then the first
// ticker-like token in the query, then the fixed fallback.
func resolveSymbol(entity, query string) string {
	if entity != "" {
		return strings.ToUpper(entity)
	}
	for _, tok := range tickerRe.FindAllString(query, -1) {
		if isTickerToken(tok) {
			return tok
		}
	}
	return DefaultSymbol
}

// isTickerToken accepts alphanumeric tokens with at least one uppercase
// letter and no lowercase letters (AAPL, BRK5), rejecting plain words and
// bare numbers.
func isTickerToken(tok string) bool {
	hasUpper := false
	for _, r := range tok {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	return hasUpper
}

func splitSubQueries(query string) []string {
	var out []string
	for _, part := range strings.Split(query, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinTexts(items []models.Item) string {
	var texts []string
	for _, it := range items {
		if it.Text != "" {
			texts = append(texts, it.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// formatHistory renders the prior Q/A pairs in snapshot order. This string is
// what the response reports as context_used.
func formatHistory(prior *store.ContextMap) string {
	var lines []string
	for pair := prior.Oldest(); pair != nil; pair = pair.Next() {
		lines = append(lines, fmt.Sprintf("Q: %s\nA: %s", pair.Key, pair.Value))
	}
	return strings.Join(lines, "\n")
}

// composeContext assembles the enriched context handed to the final
// completion: history, the current query, retrieved passages, then the fetch
// result under a labeled section, blank lines between sections.
func composeContext(history, query, retrieved, intent, fetched string) string {
	var sections []string
	if history != "" {
		sections = append(sections, history)
	}
	sections = append(sections, "User: "+query)
	if retrieved != "" {
		sections = append(sections, "Context from vector index:\n"+retrieved)
	}
	if fetched != "" {
		sections = append(sections, sectionLabel(intent)+" Result:\n"+fetched)
	}
	return strings.Join(sections, "\n\n")
}

func sectionLabel(intent string) string {
	switch intent {
	case IntentNews:
		return "News"
	case IntentStock:
		return "Stock"
	case IntentSearch:
		return "Search"
	}
	return "General"
}
