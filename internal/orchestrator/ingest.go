package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Yates-Labs/dramatis/internal/rag"
	"github.com/Yates-Labs/dramatis/internal/rag/store"
	"github.com/Yates-Labs/dramatis/internal/source"
	"github.com/Yates-Labs/dramatis/internal/story"
)

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	Source    string         `json:"source"`
	Stories   int            `json:"stories"`
	StorePath string         `json:"storePath"`
	Skipped   bool           `json:"skipped"`
	Existing  int64          `json:"existing"`
	Index     rag.IndexStats `json:"index"`
	Duration  time.Duration  `json:"duration"`
}

// Ingester loads stories, persists them to the story store and fills the
// embedding index.
type Ingester struct {
	Stories   *story.Store
	Splitter  rag.Splitter
	Embedder  rag.Embedder
	Index     store.VectorStore
	BatchSize int

	// IndexTimeout bounds the Count and Reset calls (0 = no limit)
	IndexTimeout time.Duration

	Logger *slog.Logger
}

// Close releases the index connection
func (in *Ingester) Close() error {
	if in.Index != nil {
		return in.Index.Close()
	}
	return nil
}

// Ingest loads src and indexes it. The story store is always rewritten.
// When the index already holds records it is left untouched unless
// rebuild is set, in which case it is reset and rebuilt from scratch.
// An embedding run that fails partway resets the index again.
func (in *Ingester) Ingest(ctx context.Context, src source.Source, rebuild bool) (IngestResult, error) {
	start := time.Now()
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}
	result := IngestResult{Source: src.Name(), StorePath: in.Stories.Path()}
	logger = logger.With("source", result.Source)

	stories, err := src.Load(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load stories: %w", err)
	}
	result.Stories = len(stories)
	logger.Info("stories loaded", "count", len(stories))

	if err := in.Stories.Save(stories); err != nil {
		return result, err
	}
	logger.Info("story store written", "path", result.StorePath)

	countCtx, cancel := withTimeout(ctx, in.IndexTimeout)
	existing, err := in.Index.Count(countCtx)
	cancel()
	if err != nil {
		return result, fmt.Errorf("failed to inspect index: %w", err)
	}
	result.Existing = existing

	if existing > 0 {
		if !rebuild {
			logger.Info("index already populated, skipping embedding", "records", existing)
			result.Skipped = true
			result.Duration = time.Since(start)
			return result, nil
		}
		resetCtx, cancel := withTimeout(ctx, in.IndexTimeout)
		err := in.Index.Reset(resetCtx)
		cancel()
		if err != nil {
			return result, fmt.Errorf("failed to reset index: %w", err)
		}
		logger.Info("index reset", "removed", existing)
	}

	stats, err := rag.IndexStories(ctx, stories, in.Splitter, in.Embedder, in.Index, rag.IndexOptions{
		BatchSize: in.BatchSize,
		Logger:    logger,
	})
	result.Index = stats
	result.Duration = time.Since(start)
	if err != nil {
		// a partial index would make the next run skip embedding
		if stats.Batches > 0 {
			resetCtx, cancel := withTimeout(context.WithoutCancel(ctx), in.IndexTimeout)
			resetErr := in.Index.Reset(resetCtx)
			cancel()
			if resetErr != nil {
				logger.Error("failed to discard partial index", "error", resetErr, "chunks", stats.Chunks)
				return result, fmt.Errorf("%w (partial index not discarded: %w)", err, resetErr)
			}
			logger.Warn("discarded partial index", "chunks", stats.Chunks)
		}
		return result, err
	}

	logger.Info("ingestion complete",
		"stories", stats.Stories, "chunks", stats.Chunks, "batches", stats.Batches, "duration", result.Duration)
	return result, nil
}
