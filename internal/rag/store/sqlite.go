package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig locates a directory-backed index.
type SQLiteConfig struct {
	Dir       string // directory holding index.db; created when missing
	Dimension int
}

// SQLiteStore implements VectorStore on SQLite with the sqlite-vec vec0
// virtual table. Chunk metadata lives in a regular table joined on rowid.
type SQLiteStore struct {
	db     *sql.DB
	config SQLiteConfig
}

var _ VectorStore = (*SQLiteStore)(nil)

// IndexFile is the database file name inside SQLiteConfig.Dir.
const IndexFile = "index.db"

// NewSQLiteStore opens (or creates) the index in config.Dir.
func NewSQLiteStore(ctx context.Context, config SQLiteConfig) (*SQLiteStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	sqlite_vec.Auto()
	db, err := sql.Open("sqlite3", filepath.Join(config.Dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	// vec0 tables are per-connection safe but a single writer keeps upserts simple
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	store := &SQLiteStore{db: db, config: config}
	if err := store.setup(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) setup(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS index_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL UNIQUE,
			story_title TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
			embedding float[%d] distance_metric=cosine
		)`, s.config.Dimension),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimension'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES ('dimension', ?)`, strconv.Itoa(s.config.Dimension))
		if err != nil {
			return fmt.Errorf("failed to record dimension: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read index metadata: %w", err)
	case stored != strconv.Itoa(s.config.Dimension):
		return fmt.Errorf("%w: index in %s was built with %s, configured %d", ErrInvalidDimension, s.config.Dir, stored, s.config.Dimension)
	}
	return nil
}

// Upsert replaces records with the same ID inside one transaction
func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, s.config.Dimension); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer tx.Rollback()

	for _, record := range records {
		blob, err := sqlite_vec.SerializeFloat32(record.Vector)
		if err != nil {
			return fmt.Errorf("%w: serialize %s: %v", ErrUpsertFailed, record.ID, err)
		}

		var existing int64
		err = tx.QueryRowContext(ctx, `SELECT id FROM chunks WHERE record_id = ?`, record.ID).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
		default:
			if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE rowid = ?`, existing); err != nil {
				return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, existing); err != nil {
				return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
			}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (record_id, story_title, chunk_index, text) VALUES (?, ?, ?, ?)`,
			record.ID, record.StoryTitle, record.ChunkIndex, record.Text)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO chunk_vectors (rowid, embedding) VALUES (?, ?)`, rowID, blob); err != nil {
			return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
	}
	return nil
}

// Search runs a vec0 KNN query and joins chunk metadata
func (s *SQLiteStore) Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error) {
	if err := validateQuery(queryVector, topK, s.config.Dimension); err != nil {
		return nil, err
	}

	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrEmptyIndex
	}

	blob, err := sqlite_vec.SerializeFloat32(queryVector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.record_id, c.story_title, c.chunk_index, c.text, v.distance
		FROM (
			SELECT rowid, distance
			FROM chunk_vectors
			WHERE embedding MATCH ? AND k = ?
		) v
		JOIN chunks c ON c.id = v.rowid
		ORDER BY v.distance`, blob, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer rows.Close()

	matches := make([]Match, 0, topK)
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Record.ID, &m.Record.StoryTitle, &m.Record.ChunkIndex, &m.Record.Text, &m.Distance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	return matches, nil
}

// Count returns the number of stored chunks
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return n, nil
}

// Reset deletes every chunk and vector
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunk_vectors`); err != nil {
		return fmt.Errorf("failed to clear vectors: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
