package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pgDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("DRAMATIS_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping pgvector test (set DRAMATIS_PG_DSN)")
	}
	return dsn
}

func TestNewPGVectorStore_InvalidDimension(t *testing.T) {
	_, err := NewPGVectorStore(context.Background(), PGVectorConfig{DSN: "postgres://unused", Dimension: 0})
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestPGVectorStore_Integration(t *testing.T) {
	ctx := context.Background()
	s, err := NewPGVectorStore(ctx, PGVectorConfig{DSN: pgDSN(t), Table: "dramatis_test_chunks", Dimension: 3})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Reset(ctx))

	_, err = s.Search(ctx, []float32{1, 0, 0}, 3)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	require.NoError(t, s.Upsert(ctx, sampleRecords()))

	matches, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Thrones_0", matches[0].Record.ID)
	assert.InDelta(t, 0, matches[0].Distance, 1e-5)

	replacement := Record{ID: "Dune_0", StoryTitle: "Dune", ChunkIndex: 0, Text: "Paul Atreides", Vector: []float32{0, 0, 1}}
	require.NoError(t, s.Upsert(ctx, []Record{replacement}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	require.NoError(t, s.Reset(ctx))
}
