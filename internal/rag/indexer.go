package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Yates-Labs/dramatis/internal/rag/store"
	"github.com/Yates-Labs/dramatis/internal/story"
)

// IndexOptions provides configuration for story indexing
type IndexOptions struct {
	// BatchSize determines how many chunks to embed at once
	BatchSize int

	Logger *slog.Logger
}

// DefaultIndexOptions returns sensible defaults for indexing
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{BatchSize: 16}
}

// IndexStats reports what IndexStories wrote.
type IndexStats struct {
	Stories int `json:"stories"`
	Chunks  int `json:"chunks"`
	Batches int `json:"batches"`
}

// IndexStories chunks every story, embeds the chunks in batches and upserts
// one record per chunk keyed by store.RecordID. Re-indexing a story
// replaces its records.
func IndexStories(
	ctx context.Context,
	stories []story.Story,
	splitter Splitter,
	embedder Embedder,
	vectorStore store.VectorStore,
	opts IndexOptions,
) (IndexStats, error) {
	var stats IndexStats
	if len(stories) == 0 {
		return stats, nil
	}
	if splitter == nil {
		return stats, fmt.Errorf("splitter cannot be nil")
	}
	if embedder == nil {
		return stats, fmt.Errorf("embedder cannot be nil")
	}
	if vectorStore == nil {
		return stats, fmt.Errorf("vector store cannot be nil")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultIndexOptions().BatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var chunks []Chunk
	for _, s := range stories {
		storyChunks, err := ChunkStory(s.Title, s.Content, splitter)
		if err != nil {
			return stats, err
		}
		if len(storyChunks) == 0 {
			logger.Warn("story has no content, skipping", "title", s.Title)
			continue
		}
		chunks = append(chunks, storyChunks...)
		stats.Stories++
	}

	for batchStart := 0; batchStart < len(chunks); batchStart += opts.BatchSize {
		batchEnd := min(batchStart+opts.BatchSize, len(chunks))
		batch := chunks[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		embedded, err := embedder.Embed(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("failed to generate embeddings for batch starting at %d: %w", batchStart, err)
		}
		if len(embedded) != len(batch) {
			return stats, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingFailed, len(embedded), len(batch))
		}

		records := make([]store.Record, len(batch))
		for _, e := range embedded {
			if e.Index < 0 || e.Index >= len(batch) {
				return stats, fmt.Errorf("%w: index %d out of range", ErrEmbeddingFailed, e.Index)
			}
			c := batch[e.Index]
			records[e.Index] = store.Record{
				ID:         store.RecordID(c.StoryTitle, c.Index),
				StoryTitle: c.StoryTitle,
				ChunkIndex: c.Index,
				Text:       c.Text,
				Vector:     e.Vector,
			}
		}

		if err := vectorStore.Upsert(ctx, records); err != nil {
			return stats, fmt.Errorf("failed to upsert batch starting at %d: %w", batchStart, err)
		}

		stats.Chunks += len(batch)
		stats.Batches++
		logger.Debug("indexed batch", "start", batchStart, "size", len(batch))
	}

	return stats, nil
}
