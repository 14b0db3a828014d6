package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Yates-Labs/dramatis/internal/rag/store"
)

// mockEmbedder implements Embedder interface for testing
type mockEmbedder struct {
	embedFunc func(ctx context.Context, texts []string) ([]Embedding, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if m.embedFunc != nil {
		return m.embedFunc(ctx, texts)
	}
	// Default: return simple embeddings
	records := make([]Embedding, len(texts))
	for i, text := range texts {
		records[i] = Embedding{
			Text:   text,
			Vector: []float32{float32(len(text)), float32(i), 1.0},
			Index:  i,
			Model:  "mock",
		}
	}
	return records, nil
}

func (m *mockEmbedder) GetModel() string  { return "mock" }
func (m *mockEmbedder) GetDimension() int { return 3 }

// mockVectorStore implements store.VectorStore for testing
type mockVectorStore struct {
	records    []store.Record
	upserts    [][]store.Record
	searchFunc func(ctx context.Context, queryVector []float32, topK int) ([]store.Match, error)
	upsertFunc func(ctx context.Context, records []store.Record) error
}

func (m *mockVectorStore) Upsert(ctx context.Context, records []store.Record) error {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, records)
	}
	m.upserts = append(m.upserts, records)
	for _, r := range records {
		replaced := false
		for i := range m.records {
			if m.records[i].ID == r.ID {
				m.records[i] = r
				replaced = true
			}
		}
		if !replaced {
			m.records = append(m.records, r)
		}
	}
	return nil
}

func (m *mockVectorStore) Search(ctx context.Context, queryVector []float32, topK int) ([]store.Match, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, queryVector, topK)
	}
	if len(m.records) == 0 {
		return nil, store.ErrEmptyIndex
	}
	// Default: insertion order
	matches := []store.Match{}
	for i, r := range m.records {
		if i >= topK {
			break
		}
		matches = append(matches, store.Match{Record: r, Distance: float32(i) / 10})
	}
	return matches, nil
}

func (m *mockVectorStore) Count(ctx context.Context) (int64, error) {
	return int64(len(m.records)), nil
}

func (m *mockVectorStore) Reset(ctx context.Context) error {
	m.records = nil
	return nil
}

func (m *mockVectorStore) Close() error { return nil }

func TestNewRetriever(t *testing.T) {
	embedder := &mockEmbedder{}
	vs := &mockVectorStore{}

	t.Run("Valid parameters", func(t *testing.T) {
		retriever, err := NewRetriever(embedder, vs)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if retriever == nil {
			t.Fatal("Expected retriever to be non-nil")
		}
	})

	t.Run("Nil embedder", func(t *testing.T) {
		_, err := NewRetriever(nil, vs)
		if err == nil {
			t.Fatal("Expected error for nil embedder")
		}
	})

	t.Run("Nil vector store", func(t *testing.T) {
		_, err := NewRetriever(embedder, nil)
		if err == nil {
			t.Fatal("Expected error for nil vector store")
		}
	})
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()

	var gotVector []float32
	var gotTopK int
	vs := &mockVectorStore{
		searchFunc: func(ctx context.Context, queryVector []float32, topK int) ([]store.Match, error) {
			gotVector, gotTopK = queryVector, topK
			return []store.Match{
				{Record: store.Record{ID: "Thrones_0", StoryTitle: "Thrones"}, Distance: 0.1},
				{Record: store.Record{ID: "Dune_0", StoryTitle: "Dune"}, Distance: 0.4},
				{Record: store.Record{ID: "Thrones_3", StoryTitle: "Thrones"}, Distance: 0.5},
			}, nil
		},
	}

	retriever, err := NewRetriever(&mockEmbedder{}, vs)
	if err != nil {
		t.Fatalf("Failed to create retriever: %v", err)
	}

	t.Run("Successful query", func(t *testing.T) {
		matches, err := retriever.Retrieve(ctx, "Arya Stark", 5)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(matches) != 3 {
			t.Fatalf("Expected 3 matches, got %d", len(matches))
		}
		if gotTopK != 5 {
			t.Errorf("Expected topK 5 passed to store, got %d", gotTopK)
		}
		if len(gotVector) != 3 || gotVector[0] != float32(len("Arya Stark")) {
			t.Errorf("Expected query embedding passed to store, got %v", gotVector)
		}
	})

	t.Run("Candidates are ranked", func(t *testing.T) {
		candidates, err := retriever.Candidates(ctx, "Arya Stark", 5)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(candidates) != 2 || candidates[0].StoryTitle != "Thrones" || candidates[0].Count != 2 {
			t.Errorf("unexpected candidates: %+v", candidates)
		}
	})

	t.Run("Empty query", func(t *testing.T) {
		if _, err := retriever.Retrieve(ctx, "", 2); err == nil {
			t.Fatal("Expected error for empty query")
		}
	})

	t.Run("Invalid topK", func(t *testing.T) {
		_, err := retriever.Retrieve(ctx, "test", 0)
		if !errors.Is(err, store.ErrInvalidTopK) {
			t.Fatalf("Expected ErrInvalidTopK, got %v", err)
		}
	})
}

func TestRetrieve_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("Embedding failure", func(t *testing.T) {
		embedder := &mockEmbedder{
			embedFunc: func(ctx context.Context, texts []string) ([]Embedding, error) {
				return nil, fmt.Errorf("%w: rate limited", ErrEmbeddingFailed)
			},
		}
		retriever, _ := NewRetriever(embedder, &mockVectorStore{})

		_, err := retriever.Retrieve(ctx, "Arya", 5)
		if !errors.Is(err, ErrQueryEmbedding) || !errors.Is(err, ErrEmbeddingFailed) {
			t.Errorf("Expected ErrQueryEmbedding wrapping ErrEmbeddingFailed, got %v", err)
		}
	})

	t.Run("Empty index", func(t *testing.T) {
		retriever, _ := NewRetriever(&mockEmbedder{}, &mockVectorStore{})

		_, err := retriever.Retrieve(ctx, "Arya", 5)
		if !errors.Is(err, store.ErrEmptyIndex) {
			t.Errorf("Expected ErrEmptyIndex, got %v", err)
		}
	})

	t.Run("Index unavailable", func(t *testing.T) {
		vs := &mockVectorStore{
			searchFunc: func(ctx context.Context, queryVector []float32, topK int) ([]store.Match, error) {
				return nil, fmt.Errorf("%w: connection refused", store.ErrIndexUnavailable)
			},
		}
		retriever, _ := NewRetriever(&mockEmbedder{}, vs)

		_, err := retriever.Retrieve(ctx, "Arya", 5)
		if !errors.Is(err, store.ErrIndexUnavailable) {
			t.Errorf("Expected ErrIndexUnavailable, got %v", err)
		}
	})
}
