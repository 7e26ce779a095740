package embed

import (
	"context"
	"fmt"
)

// Embedder produces one vector per input chunk.
type Embedder interface {
	Embed(ctx context.Context, chunks []string) ([][]float64, error)
}

// Service chunks text, embeds the chunks and persists them, and answers
// similarity queries against the stored documents.
type Service struct {
	embedder Embedder
	store    *Store
}

func NewService(embedder Embedder, store *Store) *Service {
	return &Service{
		embedder: embedder,
		store:    store,
	}
}

// Index splits text into chunks, embeds each and stores the results.
// It returns the embeddings in chunk order.
func (s *Service) Index(ctx context.Context, text string) ([][]float64, error) {
	chunks := Chunk(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no embeddable content in text")
	}

	embeddings, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	for i, chunk := range chunks {
		if err := s.store.Insert(ctx, chunk, embeddings[i]); err != nil {
			return nil, err
		}
	}
	return embeddings, nil
}

// Search embeds the prompt and returns stored chunks whose similarity
// meets the threshold.
func (s *Service) Search(ctx context.Context, prompt string, threshold float64, count int) ([]MatchResult, error) {
	embeddings, err := s.embedder.Embed(ctx, []string{prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to embed search prompt: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for prompt")
	}

	return s.store.Match(ctx, embeddings[0], threshold, count)
}
