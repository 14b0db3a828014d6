package source

import (
	"context"
	"fmt"
	"os"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/storage/memory"

	"github.com/Yates-Labs/dramatis/internal/story"
)

// GitSource reads .txt files from the HEAD commit of a git repository.
// Local paths are opened in place; anything else is cloned into memory.
type GitSource struct {
	location string
}

// NewGitSource creates a source for a repository path or URL
func NewGitSource(location string) *GitSource {
	return &GitSource{location: location}
}

// Name implements Source
func (g *GitSource) Name() string {
	return g.location
}

// OpenRepository opens a Git repository from a local path
func OpenRepository(path string) (*git.Repository, error) {
	return git.PlainOpen(path)
}

// CloneRepository clones a Git repository to memory
func CloneRepository(url string) (*git.Repository, error) {
	return git.Clone(memory.NewStorage(), nil, &git.CloneOptions{
		URL:   url,
		Depth: 1,
	})
}

func (g *GitSource) open() (*git.Repository, error) {
	if info, err := os.Stat(g.location); err == nil && info.IsDir() {
		repo, err := OpenRepository(g.location)
		if err != nil {
			return nil, fmt.Errorf("failed to open repository %s: %w", g.location, err)
		}
		return repo, nil
	}

	repo, err := CloneRepository(g.location)
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository %s: %w", g.location, err)
	}
	return repo, nil
}

// Load implements Source
func (g *GitSource) Load(ctx context.Context) ([]story.Story, error) {
	repo, err := g.open()
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	var stories []story.Story
	err = tree.Files().ForEach(func(file *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !isStoryFile(file.Name) {
			return nil
		}
		if isBinary, _ := file.IsBinary(); isBinary {
			return nil
		}

		content, err := file.Contents()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file.Name, err)
		}
		stories = append(stories, story.Story{
			Title:   titleFromName(file.Name),
			Content: content,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return collect(g.location, stories)
}
