package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PGVectorConfig locates a PostgreSQL index with the pgvector extension.
type PGVectorConfig struct {
	DSN       string
	Table     string
	Dimension int
}

// PGVectorStore implements VectorStore on PostgreSQL + pgvector using the
// cosine distance operator.
type PGVectorStore struct {
	db     *sql.DB
	config PGVectorConfig
	table  string // quoted identifier
}

var _ VectorStore = (*PGVectorStore)(nil)

// NewPGVectorStore connects and ensures the extension and table exist.
func NewPGVectorStore(ctx context.Context, config PGVectorConfig) (*PGVectorStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}
	if config.Table == "" {
		config.Table = "stories"
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	store := &PGVectorStore{
		db:     db,
		config: config,
		table:  pq.QuoteIdentifier(config.Table),
	}
	if err := store.setup(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (p *PGVectorStore) setup(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			story_title TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, p.table, p.config.Dimension),
	}
	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Upsert inserts records, updating rows whose id already exists
func (p *PGVectorStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, p.config.Dimension); err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, story_title, chunk_index, text, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			story_title = EXCLUDED.story_title,
			chunk_index = EXCLUDED.chunk_index,
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding`, p.table)

	for _, record := range records {
		_, err := tx.ExecContext(ctx, query,
			record.ID, record.StoryTitle, record.ChunkIndex, record.Text, pgvector.NewVector(record.Vector))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
	}
	return nil
}

// Search orders by cosine distance (<=>)
func (p *PGVectorStore) Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error) {
	if err := validateQuery(queryVector, topK, p.config.Dimension); err != nil {
		return nil, err
	}

	count, err := p.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrEmptyIndex
	}

	query := fmt.Sprintf(`
		SELECT id, story_title, chunk_index, text, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, p.table)

	rows, err := p.db.QueryContext(ctx, query, pgvector.NewVector(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer rows.Close()

	matches := make([]Match, 0, topK)
	for rows.Next() {
		var m Match
		var distance float64
		if err := rows.Scan(&m.Record.ID, &m.Record.StoryTitle, &m.Record.ChunkIndex, &m.Record.Text, &distance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
		}
		m.Distance = float32(distance)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	return matches, nil
}

// Count returns the number of rows
func (p *PGVectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return n, nil
}

// Reset truncates the table
func (p *PGVectorStore) Reset(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf(`TRUNCATE %s`, p.table)); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", p.config.Table, err)
	}
	return nil
}

// Close closes the connection pool
func (p *PGVectorStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
