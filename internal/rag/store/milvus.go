package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusConfig holds configuration for Milvus connection and collection
type MilvusConfig struct {
	Address        string // Milvus server address (e.g., "localhost:19530")
	CollectionName string // Name of the collection
	Dimension      int    // Vector dimension (e.g., 1536 for text-embedding-3-small)
	MetricType     string // Similarity metric: "COSINE" or "L2"

	// HNSW index parameters
	M              int // HNSW M parameter (default: 16)
	EfConstruction int // HNSW efConstruction (default: 256)
	Ef             int // HNSW ef at search time (default: 64)
}

// DefaultMilvusConfig returns the default collection layout.
func DefaultMilvusConfig() MilvusConfig {
	return MilvusConfig{
		Address:        "localhost:19530",
		CollectionName: "stories",
		Dimension:      1536,
		MetricType:     "COSINE",
		M:              16,
		EfConstruction: 256,
		Ef:             64,
	}
}

// MilvusStore implements VectorStore using Milvus
type MilvusStore struct {
	client client.Client
	config MilvusConfig
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore connects to Milvus and ensures the collection exists
// and is loaded.
func NewMilvusStore(ctx context.Context, config MilvusConfig) (*MilvusStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	store := &MilvusStore{
		client: c,
		config: config,
	}

	if err := store.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return store, nil
}

func (m *MilvusStore) metric() entity.MetricType {
	if m.config.MetricType == "L2" {
		return entity.L2
	}
	return entity.COSINE
}

// ensureCollection creates the collection with schema if it doesn't exist
func (m *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.config.CollectionName)
	if err != nil {
		return fmt.Errorf("%w: failed to check collection existence: %v", ErrIndexUnavailable, err)
	}

	if !has {
		schema := &entity.Schema{
			CollectionName: m.config.CollectionName,
			Description:    "story chunk embeddings",
			AutoID:         false,
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{
						"max_length": "512",
					},
				},
				{
					Name:     "story_title",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "512",
					},
				},
				{
					Name:     "chunk_index",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     "text",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "65535",
					},
				},
				{
					Name:     "embedding",
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": fmt.Sprintf("%d", m.config.Dimension),
					},
				},
			},
		}

		if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx, err := entity.NewIndexHNSW(m.metric(), m.config.M, m.config.EfConstruction)
		if err != nil {
			return fmt.Errorf("failed to create index config: %w", err)
		}

		if err := m.client.CreateIndex(ctx, m.config.CollectionName, "embedding", idx, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	// Load collection into memory (no-op when already loaded)
	if err := m.client.LoadCollection(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	return nil
}

// Upsert writes records keyed by ID and flushes them
func (m *MilvusStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, m.config.Dimension); err != nil {
		return err
	}

	ids := make([]string, len(records))
	titles := make([]string, len(records))
	indexes := make([]int64, len(records))
	texts := make([]string, len(records))
	embeddings := make([][]float32, len(records))

	for i, record := range records {
		ids[i] = record.ID
		titles[i] = record.StoryTitle
		indexes[i] = int64(record.ChunkIndex)
		texts[i] = record.Text
		embeddings[i] = record.Vector
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("story_title", titles),
		entity.NewColumnInt64("chunk_index", indexes),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", m.config.Dimension, embeddings),
	}

	if _, err := m.client.Upsert(ctx, m.config.CollectionName, "", columns...); err != nil {
		return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
	}

	// Flush to ensure data is persisted
	if err := m.client.Flush(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to flush data: %w", err)
	}

	return nil
}

// Search performs top-K similarity search. Milvus reports cosine
// similarity, which is converted to distance (1 - similarity).
func (m *MilvusStore) Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error) {
	if err := validateQuery(queryVector, topK, m.config.Dimension); err != nil {
		return nil, err
	}

	count, err := m.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrEmptyIndex
	}

	sp, err := entity.NewIndexHNSWSearchParam(m.config.Ef)
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	vectors := []entity.Vector{entity.FloatVector(queryVector)}
	outputFields := []string{"story_title", "chunk_index", "text"}

	results, err := m.client.Search(
		ctx,
		m.config.CollectionName,
		nil, // partition names
		"",
		outputFields,
		vectors,
		"embedding",
		m.metric(),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	if len(results) == 0 {
		return []Match{}, nil
	}

	res := results[0]
	matches := make([]Match, 0, res.ResultCount)

	for i := 0; i < res.ResultCount; i++ {
		match := Match{Distance: m.toDistance(res.Scores[i])}

		if idCol, ok := res.IDs.(*entity.ColumnVarChar); ok {
			match.Record.ID = idCol.Data()[i]
		}

		for _, field := range res.Fields {
			switch field.Name() {
			case "story_title":
				match.Record.StoryTitle = field.(*entity.ColumnVarChar).Data()[i]
			case "chunk_index":
				match.Record.ChunkIndex = int(field.(*entity.ColumnInt64).Data()[i])
			case "text":
				match.Record.Text = field.(*entity.ColumnVarChar).Data()[i]
			}
		}

		matches = append(matches, match)
	}

	return matches, nil
}

func (m *MilvusStore) toDistance(score float32) float32 {
	if m.metric() == entity.COSINE {
		return 1 - score
	}
	return score
}

// Count returns the collection row count
func (m *MilvusStore) Count(ctx context.Context) (int64, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.config.CollectionName)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get stats: %v", ErrIndexUnavailable, err)
	}

	rowCount, ok := stats["row_count"]
	if !ok || rowCount == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(rowCount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid row_count %q: %w", rowCount, err)
	}
	return n, nil
}

// Reset drops and recreates the collection
func (m *MilvusStore) Reset(ctx context.Context) error {
	if err := m.client.DropCollection(ctx, m.config.CollectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return m.ensureCollection(ctx)
}

// Close releases resources and closes the Milvus connection
func (m *MilvusStore) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
