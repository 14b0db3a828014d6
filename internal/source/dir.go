package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Yates-Labs/dramatis/internal/story"
)

// DirSource reads the .txt files directly inside a directory
type DirSource struct {
	dir string
}

// NewDirSource creates a source for dir
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Name implements Source
func (d *DirSource) Name() string {
	return d.dir
}

// Load implements Source
func (d *DirSource) Load(ctx context.Context) ([]story.Story, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.dir, err)
	}

	var stories []story.Story
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isStoryFile(entry.Name()) {
			continue
		}

		content, err := os.ReadFile(filepath.Join(d.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		stories = append(stories, story.Story{
			Title:   titleFromName(entry.Name()),
			Content: string(content),
		})
	}

	return collect(d.dir, stories)
}
