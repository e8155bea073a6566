package service

import (
	"context"
	"time"
)

// EmbeddingClient defines the interface for generating embeddings.
// The same model must be used for a store's whole lifetime; changing
// it requires a full store rebuild.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// LLMClient defines the interface for bounded chat completions.
type LLMClient interface {
	Complete(ctx context.Context, prompt string, temperature float32, timeout time.Duration) (string, error)
}
