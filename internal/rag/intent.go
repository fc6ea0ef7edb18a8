package rag

import (
	"context"
	"fmt"
	"strings"
)

// Intent labels the classifier may return. Anything else collapses to general.
const (
	IntentNews    = "news"
	IntentStock   = "stock"
	IntentSearch  = "search"
	IntentGeneral = "general"
)

var validIntents = map[string]bool{
	IntentNews:    true,
	IntentStock:   true,
	IntentSearch:  true,
	IntentGeneral: true,
}

const intentPrompt = `Classify the user query into exactly one intent out of: news, stock, search, general.
Also extract the main entity the query is about (a topic, a stock ticker, or a search phrase).
Respond with exactly two lines and nothing else:
intent:<label>
entity:<value>

Query: %s`

// classifyIntent asks the provider for an intent label and entity, then
// parses the two-line reply defensively. Providers drift: extra lines,
// quoting and unknown labels all degrade to general with an empty entity
// rather than failing the request.
func (p *Pipeline) classifyIntent(ctx context.Context, query string) (intent, entity string) {
	out, err := p.Provider.Completion(ctx, fmt.Sprintf(intentPrompt, query), "")
	if err != nil {
		p.logf("intent classification failed, defaulting to general: %v", err)
		return IntentGeneral, ""
	}
	intent, entity = parseIntentReply(out)
	if !validIntents[intent] {
		return IntentGeneral, ""
	}
	return intent, entity
}

func parseIntentReply(out string) (intent, entity string) {
	intent = IntentGeneral
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToLower(line), "intent:"):
			intent = strings.ToLower(stripQuotes(strings.TrimSpace(line[len("intent:"):])))
		case strings.HasPrefix(strings.ToLower(line), "entity:"):
			entity = stripQuotes(strings.TrimSpace(line[len("entity:"):]))
		}
	}
	return intent, entity
}

func stripQuotes(s string) string {
	return strings.Trim(s, `"'`)
}
