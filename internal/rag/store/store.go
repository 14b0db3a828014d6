// Package store provides the embedding index: persistent chunk vectors
// with nearest-neighbour search delegated to a vector engine.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for vector store operations
var (
	ErrIndexUnavailable = errors.New("vector index unavailable")
	ErrEmptyIndex       = errors.New("vector index is empty")
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrInvalidTopK      = errors.New("topK must be positive")
	ErrUpsertFailed     = errors.New("failed to upsert records")
	ErrSearchFailed     = errors.New("failed to search vectors")
)

// Record is one embedded chunk. ID is unique; see RecordID.
type Record struct {
	ID         string    `json:"id"`
	StoryTitle string    `json:"story_title"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"-"`
}

// Match is a search hit. Lower Distance means closer.
type Match struct {
	Record   Record  `json:"record"`
	Distance float32 `json:"distance"`
}

// VectorStore defines the interface for the embedding index.
type VectorStore interface {
	// Upsert stores records, replacing any existing record with the same ID
	Upsert(ctx context.Context, records []Record) error

	// Search returns up to topK records closest to queryVector, ascending distance.
	// Returns ErrEmptyIndex when the index holds no records.
	Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error)

	// Count returns the number of stored records
	Count(ctx context.Context) (int64, error)

	// Reset removes every record
	Reset(ctx context.Context) error

	// Close releases resources and closes connections
	Close() error
}

// RecordID builds the unique record identifier for a story chunk.
func RecordID(storyTitle string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", storyTitle, chunkIndex)
}

func validateRecords(records []Record, dimension int) error {
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record for %q has empty id", ErrUpsertFailed, r.StoryTitle)
		}
		if len(r.Vector) != dimension {
			return fmt.Errorf("%w: record %s expected %d, got %d", ErrInvalidDimension, r.ID, dimension, len(r.Vector))
		}
	}
	return nil
}

func validateQuery(queryVector []float32, topK, dimension int) error {
	if topK <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidTopK, topK)
	}
	if len(queryVector) != dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, dimension, len(queryVector))
	}
	return nil
}
