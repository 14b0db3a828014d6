// Package story persists the raw story collection as a single JSON document.
package story

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Story is a raw story text keyed by its title.
type Story struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Store loads and saves the story collection at a fixed path.
type Store struct {
	path string
}

// NewStore returns a Store backed by the JSON document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the backing document.
func (s *Store) Path() string {
	return s.path
}

// Load reads the collection. A missing file yields an empty collection.
func (s *Store) Load() ([]Story, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Story{}, nil
		}
		return nil, fmt.Errorf("failed to open story collection: %w", err)
	}
	defer file.Close()

	var stories []Story
	if err := json.NewDecoder(file).Decode(&stories); err != nil {
		if errors.Is(err, io.EOF) {
			return []Story{}, nil
		}
		return nil, fmt.Errorf("failed to decode story collection: %w", err)
	}
	return stories, nil
}

// Save replaces the collection on disk. Titles must be unique.
func (s *Store) Save(stories []Story) error {
	seen := make(map[string]struct{}, len(stories))
	for _, st := range stories {
		if _, dup := seen[st.Title]; dup {
			return fmt.Errorf("duplicate story title %q", st.Title)
		}
		seen[st.Title] = struct{}{}
	}
	return SaveJSON(stories, s.path)
}

// Lookup returns the collection as a title -> content map.
func (s *Store) Lookup() (map[string]string, error) {
	stories, err := s.Load()
	if err != nil {
		return nil, err
	}
	byTitle := make(map[string]string, len(stories))
	for _, st := range stories {
		byTitle[st.Title] = st.Content
	}
	return byTitle, nil
}

// Titles returns the stored titles in alphabetical order.
func (s *Store) Titles() ([]string, error) {
	stories, err := s.Load()
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(stories))
	for i, st := range stories {
		titles[i] = st.Title
	}
	sort.Strings(titles)
	return titles, nil
}

// SaveJSON writes v to path as indented JSON, keeping non-ASCII text as is.
func SaveJSON(v any, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return writeJSON(file, v, path)
}

// writeJSON encodes v to w and closes it. A failed close is reported
// because buffered data may not have reached disk.
func writeJSON(w io.WriteCloser, v any, path string) (err error) {
	defer func() {
		if closeErr := w.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to write %s: %w", path, closeErr)
		}
	}()

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "    ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
