package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v77/github"

	"github.com/Yates-Labs/dramatis/internal/story"
)

// GitHubSource reads .txt files from one directory of a GitHub repository
// through the contents API.
type GitHubSource struct {
	client *github.Client
	owner  string
	repo   string
	path   string
	ref    string
}

// NewClient creates a GitHub API client. An empty token gives an
// unauthenticated client.
func NewClient(token string) *github.Client {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return client
}

// ParseGitHub parses "owner/repo[/path][@ref]"
func ParseGitHub(spec, token string) (*GitHubSource, error) {
	location, ref, _ := strings.Cut(spec, "@")
	parts := strings.SplitN(location, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: expected github:owner/repo[/path][@ref], got %q", ErrInvalidSource, spec)
	}

	src := &GitHubSource{
		client: NewClient(token),
		owner:  parts[0],
		repo:   parts[1],
		ref:    ref,
	}
	if len(parts) == 3 {
		src.path = strings.Trim(parts[2], "/")
	}
	return src, nil
}

// NewGitHubSource creates a source with an existing client
func NewGitHubSource(client *github.Client, owner, repo, path, ref string) *GitHubSource {
	return &GitHubSource{client: client, owner: owner, repo: repo, path: path, ref: ref}
}

// Name implements Source
func (g *GitHubSource) Name() string {
	name := fmt.Sprintf("github:%s/%s", g.owner, g.repo)
	if g.path != "" {
		name += "/" + g.path
	}
	if g.ref != "" {
		name += "@" + g.ref
	}
	return name
}

// Load implements Source
func (g *GitHubSource) Load(ctx context.Context) ([]story.Story, error) {
	opts := &github.RepositoryContentGetOptions{Ref: g.ref}

	_, entries, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, g.path, opts)
	if err != nil {
		return nil, handleAPIError(err, "failed to list "+g.Name())
	}

	var stories []story.Story
	for _, entry := range entries {
		if entry.GetType() != "file" || !isStoryFile(entry.GetName()) {
			continue
		}

		file, _, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, entry.GetPath(), opts)
		if err != nil {
			return nil, handleAPIError(err, "failed to fetch "+entry.GetPath())
		}
		if file == nil {
			continue
		}
		content, err := file.GetContent()
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", entry.GetPath(), err)
		}

		stories = append(stories, story.Story{
			Title:   titleFromName(entry.GetName()),
			Content: content,
		})
	}

	return collect(g.Name(), stories)
}

// handleAPIError wraps API errors with context and detects rate limiting
func handleAPIError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return fmt.Errorf("%s: hit primary rate limit (used %d of %d, resets at %v): %w",
			msg, rateLimitErr.Rate.Used, rateLimitErr.Rate.Limit, rateLimitErr.Rate.Reset.Time, err)
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%s: hit secondary rate limit (retry after %v): %w",
			msg, abuseErr.GetRetryAfter(), err)
	}

	return fmt.Errorf("%s: %w", msg, err)
}
