package server

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/aiworker/internal/rag"
	"github.com/mohammad-safakhou/aiworker/internal/store"
	"github.com/mohammad-safakhou/aiworker/provider"
)

// Job is one scheduled fetch-and-summarize task. Fetch pulls the items, the
// first Limit texts are joined and summarized with Prompt, and the summary is
// stored as a Report of Kind.
type Job struct {
	Name   string
	Kind   string
	Cron   string
	Query  string
	Limit  int
	Prompt string
	Fetch  rag.Fetcher
}

// run executes the job once. The caller owns the Run row lifecycle.
func (j Job) run(ctx context.Context, st *store.Store, prov provider.Provider, logger *log.Logger) error {
	items, err := j.Fetch.Fetch(ctx, j.Query, j.Limit)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", j.Name, err)
	}
	var texts []string
	for i, it := range items {
		if i >= j.Limit {
			break
		}
		if it.Text != "" {
			texts = append(texts, it.Text)
		}
	}
	if len(texts) == 0 {
		logger.Printf("job %s fetched no data, skipping report", j.Name)
		return nil
	}
	summary, err := prov.Completion(ctx, j.Prompt+strings.Join(texts, " "), "")
	if err != nil {
		return fmt.Errorf("summarize %s: %w", j.Name, err)
	}
	if _, err := st.CreateReport(ctx, j.Kind, summary); err != nil {
		return fmt.Errorf("save %s report: %w", j.Name, err)
	}
	return nil
}
