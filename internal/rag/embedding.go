package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Common errors for embedding operations
var (
	ErrEmptyTexts      = errors.New("no texts provided for embedding")
	ErrMissingAPIKey   = errors.New("embedding API key not set")
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedding is the vector for one input text. Index is the position of
// Text in the slice passed to Embed.
type Embedding struct {
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
	Index  int       `json:"index"`
	Model  string    `json:"model"`
}

// Embedder defines the interface for generating text embeddings
type Embedder interface {
	// Embed generates embeddings for the provided texts, in input order
	Embed(ctx context.Context, texts []string) ([]Embedding, error)

	// GetModel returns the embedding model identifier
	GetModel() string

	// GetDimension returns the embedding vector dimension
	GetDimension() int
}

// OpenAIEmbedder implements the Embedder interface using OpenAI's API or
// any endpoint speaking the same protocol.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder creates a new OpenAI embedder instance. baseURL may be
// empty to use the public API.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimension int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}, nil
}

// GetModel returns the embedding model identifier
func (e *OpenAIEmbedder) GetModel() string {
	return e.model
}

// GetDimension returns the embedding vector dimension
func (e *OpenAIEmbedder) GetDimension() int {
	return e.dimension
}

// Embed generates embeddings for the provided texts using OpenAI's API
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyTexts
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	// Only the text-embedding-3 family accepts a reduced dimension
	if strings.HasPrefix(e.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(resp.Data), len(texts))
	}

	records := make([]Embedding, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(texts) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrEmbeddingFailed, idx)
		}

		// Convert []float64 to []float32
		vector := make([]float32, len(data.Embedding))
		for j, val := range data.Embedding {
			vector[j] = float32(val)
		}
		if len(vector) != e.dimension {
			return nil, fmt.Errorf("%w: dimension mismatch: got %d, want %d", ErrEmbeddingFailed, len(vector), e.dimension)
		}

		records[idx] = Embedding{
			Text:   texts[idx],
			Vector: vector,
			Index:  idx,
			Model:  e.model,
		}
	}

	return records, nil
}

// OllamaEmbedder embeds through a local Ollama server via langchaingo.
type OllamaEmbedder struct {
	model     embeddings.Embedder
	modelName string
	dimension int
}

// NewOllamaEmbedder creates an embedder for the given Ollama model
func NewOllamaEmbedder(serverURL, model string, dimension int) (*OllamaEmbedder, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}

	return &OllamaEmbedder{
		model:     embedder,
		modelName: model,
		dimension: dimension,
	}, nil
}

// GetModel returns the embedding model identifier
func (e *OllamaEmbedder) GetModel() string {
	return e.modelName
}

// GetDimension returns the embedding vector dimension
func (e *OllamaEmbedder) GetDimension() int {
	return e.dimension
}

// Embed generates embeddings for the provided texts
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyTexts
	}

	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}

	records := make([]Embedding, len(texts))
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: embedding %d dimension mismatch: got %d, want %d", ErrEmbeddingFailed, i, len(v), e.dimension)
		}
		records[i] = Embedding{Text: texts[i], Vector: v, Index: i, Model: e.modelName}
	}
	return records, nil
}

// CachedEmbedder serves repeated texts from an in-memory LRU cache and
// forwards only misses to the wrapped embedder.
type CachedEmbedder struct {
	next  Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps next with a cache of size entries. A size <= 0
// returns next unchanged.
func NewCachedEmbedder(next Embedder, size int) (Embedder, error) {
	if next == nil || size <= 0 {
		return next, nil
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

// GetModel returns the wrapped model identifier
func (c *CachedEmbedder) GetModel() string {
	return c.next.GetModel()
}

// GetDimension returns the wrapped vector dimension
func (c *CachedEmbedder) GetDimension() int {
	return c.next.GetDimension()
}

// Embed implements Embedder
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyTexts
	}

	model := c.next.GetModel()
	records := make([]Embedding, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if v, ok := c.cache.Get(cacheKey(model, text)); ok {
			records[i] = Embedding{Text: text, Vector: cloneVector(v), Index: i, Model: model}
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return records, nil
	}

	fresh, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(fresh), len(missTexts))
	}

	for _, rec := range fresh {
		if rec.Index < 0 || rec.Index >= len(missIdx) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrEmbeddingFailed, rec.Index)
		}
		i := missIdx[rec.Index]
		c.cache.Add(cacheKey(model, rec.Text), cloneVector(rec.Vector))
		rec.Index = i
		records[i] = rec
	}
	return records, nil
}

func cacheKey(model, text string) string {
	return model + "\x00" + text
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
