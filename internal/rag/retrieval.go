package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/Yates-Labs/dramatis/internal/rag/store"
)

var ErrQueryEmbedding = errors.New("failed to embed query")

// Retriever provides semantic retrieval over the chunk index.
type Retriever struct {
	embedder    Embedder
	vectorStore store.VectorStore
}

// NewRetriever creates a new Retriever instance.
func NewRetriever(embedder Embedder, vectorStore store.VectorStore) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if vectorStore == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}

	return &Retriever{
		embedder:    embedder,
		vectorStore: vectorStore,
	}, nil
}

// Retrieve embeds query and returns the topK closest chunks. Index errors
// (store.ErrEmptyIndex, store.ErrIndexUnavailable) are returned wrapped.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]store.Match, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w, got %d", store.ErrInvalidTopK, topK)
	}

	records, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryEmbedding, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no embedding generated", ErrQueryEmbedding)
	}

	matches, err := r.vectorStore.Search(ctx, records[0].Vector, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search for query: %w", err)
	}
	return matches, nil
}

// Candidates retrieves and ranks stories for query.
func (r *Retriever) Candidates(ctx context.Context, query string, topK int) ([]Candidate, error) {
	matches, err := r.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return Rank(matches), nil
}
