package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/google/go-github/v77/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestDirSource_Load(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"Thrones.txt":      "Arya Stark is the daughter of Eddard Stark.",
		"Dune.txt":         "Paul Atreides.",
		"notes.md":         "ignored",
		"nested/Other.txt": "ignored, not top level",
	})

	stories, err := NewDirSource(dir).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stories, 2)

	assert.Equal(t, "Dune", stories[0].Title)
	assert.Equal(t, "Thrones", stories[1].Title)
	assert.Equal(t, "Arya Stark is the daughter of Eddard Stark.", stories[1].Content)
}

func TestDirSource_Empty(t *testing.T) {
	_, err := NewDirSource(t.TempDir()).Load(context.Background())
	assert.ErrorIs(t, err, ErrNoStories)
}

func TestDirSource_Missing(t *testing.T) {
	_, err := NewDirSource(filepath.Join(t.TempDir(), "nope")).Load(context.Background())
	assert.Error(t, err)
}

func initRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	writeFiles(t, dir, files)
	for name := range files {
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("add stories", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func TestGitSource_Load(t *testing.T) {
	dir := initRepo(t, map[string]string{
		"stories/Thrones.txt": "Arya Stark",
		"Dune.txt":            "Paul",
		"README.md":           "not a story",
	})
	// Uncommitted files are not part of HEAD
	writeFiles(t, dir, map[string]string{"Draft.txt": "unfinished"})

	stories, err := NewGitSource(dir).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, "Dune", stories[0].Title)
	assert.Equal(t, "Thrones", stories[1].Title)
	assert.Equal(t, "Arya Stark", stories[1].Content)
}

func TestGitSource_DuplicateTitles(t *testing.T) {
	dir := initRepo(t, map[string]string{
		"a/Thrones.txt": "one",
		"b/Thrones.txt": "two",
	})

	_, err := NewGitSource(dir).Load(context.Background())
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func newGitHubTestServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		w.Header().Set("Content-Type", "application/json")

		p := strings.TrimPrefix(r.URL.Path, "/repos/owner/repo/contents/")
		if p == "stories" {
			var listing []map[string]any
			for name := range files {
				listing = append(listing, map[string]any{"type": "file", "name": name, "path": "stories/" + name})
			}
			listing = append(listing, map[string]any{"type": "dir", "name": "drafts", "path": "stories/drafts"})
			_ = json.NewEncoder(w).Encode(listing)
			return
		}

		name := strings.TrimPrefix(p, "stories/")
		content, ok := files[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "Not Found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"name":     name,
			"path":     p,
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	}))
}

func TestGitHubSource_Load(t *testing.T) {
	server := newGitHubTestServer(t, map[string]string{
		"Thrones.txt": "Arya Stark",
		"Dune.txt":    "Paul",
		"cover.png":   "binary",
	})
	defer server.Close()

	client := github.NewClient(nil)
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = baseURL

	src := NewGitHubSource(client, "owner", "repo", "stories", "main")
	assert.Equal(t, "github:owner/repo/stories@main", src.Name())

	stories, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, "Dune", stories[0].Title)
	assert.Equal(t, "Arya Stark", stories[1].Content)
}

func TestParseGitHub(t *testing.T) {
	src, err := ParseGitHub("owner/repo/data/stories@v1", "")
	require.NoError(t, err)
	assert.Equal(t, "owner", src.owner)
	assert.Equal(t, "repo", src.repo)
	assert.Equal(t, "data/stories", src.path)
	assert.Equal(t, "v1", src.ref)

	src, err = ParseGitHub("owner/repo", "token")
	require.NoError(t, err)
	assert.Empty(t, src.path)
	assert.Empty(t, src.ref)

	for _, bad := range []string{"", "owner", "/repo", "owner/"} {
		_, err := ParseGitHub(bad, "")
		assert.ErrorIs(t, err, ErrInvalidSource, bad)
	}
}

// mockS3 serves objects from a map, two keys per page.
type mockS3 struct {
	objects map[string]string
	keys    []string
}

func (m *mockS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range m.keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}

	out := &s3.ListObjectsV2Output{}
	end := min(start+2, len(m.keys))
	for _, k := range m.keys[start:end] {
		if in.Prefix != nil && !strings.HasPrefix(k, *in.Prefix) {
			continue
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(m.keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(m.keys[end])
	}
	return out, nil
}

func (m *mockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	content, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(content))}, nil
}

func TestS3Source_Load(t *testing.T) {
	client := &mockS3{
		objects: map[string]string{
			"stories/Thrones.txt": "Arya Stark",
			"stories/Dune.txt":    "Paul",
			"stories/index.json":  "{}",
			"other/Skip.txt":      "outside prefix",
		},
		keys: []string{"other/Skip.txt", "stories/Dune.txt", "stories/Thrones.txt", "stories/index.json"},
	}

	src := NewS3SourceWithClient(client, "bucket", "stories/")
	assert.Equal(t, "s3://bucket/stories/", src.Name())

	stories, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, "Dune", stories[0].Title)
	assert.Equal(t, "Thrones", stories[1].Title)
	assert.Equal(t, "Arya Stark", stories[1].Content)
}

func TestParse(t *testing.T) {
	ctx := context.Background()
	plain := t.TempDir()
	repo := initRepo(t, map[string]string{"A.txt": "a"})

	tests := []struct {
		name    string
		arg     string
		want    any
		wantErr bool
	}{
		{"plain directory", plain, &DirSource{}, false},
		{"git working copy", repo, &GitSource{}, false},
		{"git url", "git+https://example.com/stories.git", &GitSource{}, false},
		{"github", "github:owner/repo", &GitHubSource{}, false},
		{"empty", "", nil, true},
		{"missing path", filepath.Join(plain, "missing"), nil, true},
		{"bad github", "github:owner", nil, true},
		{"s3 without bucket", "s3://", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Parse(ctx, tt.arg, Options{})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSource)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, src)
		})
	}
}
