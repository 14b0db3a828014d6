// Package orchestrator wires configuration into the ingestion and
// character lookup pipelines.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Yates-Labs/dramatis/internal/character"
	"github.com/Yates-Labs/dramatis/internal/config"
	"github.com/Yates-Labs/dramatis/internal/llm"
	"github.com/Yates-Labs/dramatis/internal/rag"
	"github.com/Yates-Labs/dramatis/internal/rag/store"
	"github.com/Yates-Labs/dramatis/internal/source"
	"github.com/Yates-Labs/dramatis/internal/story"
)

// NewEmbedder creates the configured embedder, wrapped in an LRU cache
// when embed.cache_size is positive.
func NewEmbedder(cfg config.EmbedConfig) (rag.Embedder, error) {
	var (
		embedder rag.Embedder
		err      error
	)
	switch cfg.Provider {
	case "", "openai":
		embedder, err = rag.NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension)
	case "ollama":
		embedder, err = rag.NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown embed.provider %q", config.ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return rag.NewCachedEmbedder(embedder, cfg.CacheSize)
}

// NewIndex opens the configured vector store backend.
func NewIndex(ctx context.Context, cfg *config.Config) (store.VectorStore, error) {
	ctx, cancel := withTimeout(ctx, cfg.Index.Timeout)
	defer cancel()

	switch cfg.Index.Backend {
	case "milvus":
		mc := store.DefaultMilvusConfig()
		mc.Address = cfg.Index.URL
		mc.CollectionName = cfg.Index.Collection
		mc.Dimension = cfg.Embed.Dimension
		return store.NewMilvusStore(ctx, mc)
	case "sqlite":
		return store.NewSQLiteStore(ctx, store.SQLiteConfig{
			Dir:       cfg.Index.Dir,
			Dimension: cfg.Embed.Dimension,
		})
	case "pgvector":
		return store.NewPGVectorStore(ctx, store.PGVectorConfig{
			DSN:       cfg.Index.URL,
			Table:     cfg.Index.Collection,
			Dimension: cfg.Embed.Dimension,
		})
	default:
		return nil, fmt.Errorf("%w: unknown index.backend %q", config.ErrInvalidConfig, cfg.Index.Backend)
	}
}

// NewLLM creates a JSON-mode model at the given temperature
func NewLLM(cfg config.LLMConfig, temperature float64) (llm.LLM, error) {
	return llm.New(llm.Config{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Endpoint:    cfg.Endpoint,
		APIKey:      cfg.APIKey,
		Temperature: temperature,
		MaxTokens:   cfg.MaxTokens,
		JSONMode:    true,
	})
}

// NewSource resolves an ingestion source argument, falling back to
// stories.source when arg is empty.
func NewSource(ctx context.Context, cfg *config.Config, arg string) (source.Source, error) {
	if arg == "" {
		arg = cfg.Stories.Source
	}
	return source.Parse(ctx, arg, source.Options{
		GitHubToken: cfg.Stories.GitHubToken,
		S3Endpoint:  cfg.Stories.S3Endpoint,
	})
}

// BuildIngester creates an Ingester from configuration. The caller closes it.
func BuildIngester(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Ingester, error) {
	splitter, err := rag.NewSplitter(cfg.Chunk.Strategy, cfg.Chunk.Size, cfg.Chunk.Overlap)
	if err != nil {
		return nil, err
	}
	embedder, err := NewEmbedder(cfg.Embed)
	if err != nil {
		return nil, err
	}
	index, err := NewIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Ingester{
		Stories:      story.NewStore(cfg.Stories.Path),
		Splitter:     splitter,
		Embedder:     embedder,
		Index:        index,
		BatchSize:    cfg.Embed.BatchSize,
		IndexTimeout: cfg.Index.Timeout,
		Logger:       logger,
	}, nil
}

// BuildPipeline creates a lookup Pipeline from configuration. Verification
// and extraction use separate model instances so each keeps its own
// temperature. The caller closes the pipeline.
func BuildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	embedder, err := NewEmbedder(cfg.Embed)
	if err != nil {
		return nil, err
	}
	verifyModel, err := NewLLM(cfg.LLM, cfg.LLM.VerifyTemperature)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification model: %w", err)
	}
	extractModel, err := NewLLM(cfg.LLM, cfg.LLM.ExtractTemperature)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction model: %w", err)
	}
	verifier, err := character.NewVerifier(verifyModel, logger)
	if err != nil {
		return nil, err
	}
	extractor, err := character.NewExtractor(extractModel, logger)
	if err != nil {
		return nil, err
	}

	index, err := NewIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	retriever, err := rag.NewRetriever(embedder, index)
	if err != nil {
		index.Close()
		return nil, err
	}

	pipeline, err := NewPipeline(retriever, story.NewStore(cfg.Stories.Path), verifier, extractor, PipelineOptions{
		TopK:         cfg.Pipeline.TopK,
		IndexTimeout: cfg.Index.Timeout,
		LLMTimeout:   cfg.LLM.Timeout,
		Logger:       logger,
	})
	if err != nil {
		index.Close()
		return nil, err
	}
	pipeline.closer = index.Close
	return pipeline, nil
}
