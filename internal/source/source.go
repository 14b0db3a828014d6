// Package source loads story collections from where they are kept: a local
// directory, a git repository, a GitHub repository or an S3 bucket.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Yates-Labs/dramatis/internal/story"
)

var (
	ErrInvalidSource = errors.New("invalid story source")
	ErrNoStories     = errors.New("no stories found")
)

// StoryExt is the file extension of story documents
const StoryExt = ".txt"

// Source defines a place stories can be loaded from
type Source interface {
	// Name returns a human readable identifier for logs and output
	Name() string

	// Load returns every story in the source, ordered by title
	Load(ctx context.Context) ([]story.Story, error)
}

// Options carries credentials and settings shared by sources
type Options struct {
	GitHubToken string
	S3Endpoint  string
}

// Parse selects a Source for arg:
//
//	git+<url>                          clone a remote git repository
//	github:owner/repo[/path][@ref]     read through the GitHub contents API
//	s3://bucket[/prefix]               read objects from S3
//	<dir>                              a git working copy, or a plain directory
func Parse(ctx context.Context, arg string, opts Options) (Source, error) {
	switch {
	case arg == "":
		return nil, fmt.Errorf("%w: empty source", ErrInvalidSource)

	case strings.HasPrefix(arg, "git+"):
		return NewGitSource(strings.TrimPrefix(arg, "git+")), nil

	case strings.HasPrefix(arg, "github:"):
		return ParseGitHub(strings.TrimPrefix(arg, "github:"), opts.GitHubToken)

	case strings.HasPrefix(arg, "s3://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(arg, "s3://"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("%w: missing bucket in %q", ErrInvalidSource, arg)
		}
		return NewS3Source(ctx, bucket, prefix, opts.S3Endpoint)
	}

	info, err := os.Stat(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidSource, arg)
	}
	if _, err := os.Stat(filepath.Join(arg, ".git")); err == nil {
		return NewGitSource(arg), nil
	}
	return NewDirSource(arg), nil
}

// isStoryFile reports whether name is a story document
func isStoryFile(name string) bool {
	return strings.EqualFold(path.Ext(name), StoryExt)
}

// titleFromName derives the story title from a file name or key
func titleFromName(name string) string {
	base := path.Base(filepath.ToSlash(name))
	return strings.TrimSuffix(base, path.Ext(base))
}

// collect validates and orders loaded stories
func collect(name string, stories []story.Story) ([]story.Story, error) {
	if len(stories) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoStories, name)
	}

	seen := make(map[string]bool, len(stories))
	for _, s := range stories {
		if seen[s.Title] {
			return nil, fmt.Errorf("%w: duplicate story title %q in %s", ErrInvalidSource, s.Title, name)
		}
		seen[s.Title] = true
	}

	sort.Slice(stories, func(i, j int) bool {
		return stories[i].Title < stories[j].Title
	})
	return stories, nil
}
