package provider

import (
	"context"
	"log"
)

// Provider is the interface all embedding/completion implementations satisfy.
type Provider interface {
	// CreateEmbedding generates one embedding vector per input text.
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	// Completion generates an answer for the prompt, optionally grounded in
	// the given context string.
	Completion(ctx context.Context, prompt string, contextStr string) (string, error)
}

// Fallback wraps a primary hosted provider with a local fallback: every call
// tries the primary first and degrades to the fallback on error.
type Fallback struct {
	Primary Provider
	Backup  Provider
	Logger  *log.Logger
}

func NewFallback(primary, backup Provider, logger *log.Logger) *Fallback {
	return &Fallback{Primary: primary, Backup: backup, Logger: logger}
}

func (f *Fallback) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := f.Primary.CreateEmbedding(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	if f.Logger != nil {
		f.Logger.Printf("primary embedding failed, using fallback: %v", err)
	}
	return f.Backup.CreateEmbedding(ctx, texts)
}

func (f *Fallback) Completion(ctx context.Context, prompt string, contextStr string) (string, error) {
	out, err := f.Primary.Completion(ctx, prompt, contextStr)
	if err == nil {
		return out, nil
	}
	if f.Logger != nil {
		f.Logger.Printf("primary completion failed, using fallback: %v", err)
	}
	return f.Backup.Completion(ctx, prompt, contextStr)
}
