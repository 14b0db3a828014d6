package orchestrator

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/dramatis/internal/character"
	"github.com/Yates-Labs/dramatis/internal/llm"
	"github.com/Yates-Labs/dramatis/internal/rag"
	"github.com/Yates-Labs/dramatis/internal/rag/store"
	"github.com/Yates-Labs/dramatis/internal/story"
)

// staticSource implements source.Source for testing
type staticSource struct {
	stories []story.Story
	err     error
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) Load(ctx context.Context) ([]story.Story, error) {
	return s.stories, s.err
}

// keywordEmbedder counts a few character names so nearest neighbour
// search behaves predictably.
type keywordEmbedder struct {
	calls int
}

var keywords = []string{"arya", "paul", "frodo"}

func (k *keywordEmbedder) Embed(ctx context.Context, texts []string) ([]rag.Embedding, error) {
	k.calls++
	out := make([]rag.Embedding, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vector := make([]float32, len(keywords)+1)
		for j, kw := range keywords {
			vector[j] = float32(strings.Count(lower, kw))
		}
		vector[len(keywords)] = 1
		out[i] = rag.Embedding{Text: text, Vector: vector, Index: i, Model: "keywords"}
	}
	return out, nil
}

func (k *keywordEmbedder) GetModel() string  { return "keywords" }
func (k *keywordEmbedder) GetDimension() int { return len(keywords) + 1 }

// memoryStore implements store.VectorStore with brute force cosine search
type memoryStore struct {
	records map[string]store.Record
	resets  int
	upserts int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]store.Record{}}
}

func (m *memoryStore) Upsert(ctx context.Context, records []store.Record) error {
	m.upserts++
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memoryStore) Search(ctx context.Context, queryVector []float32, topK int) ([]store.Match, error) {
	if len(m.records) == 0 {
		return nil, store.ErrEmptyIndex
	}
	matches := make([]store.Match, 0, len(m.records))
	for _, r := range m.records {
		matches = append(matches, store.Match{Record: r, Distance: cosineDistance(queryVector, r.Vector)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *memoryStore) Count(ctx context.Context) (int64, error) {
	return int64(len(m.records)), nil
}

func (m *memoryStore) Reset(ctx context.Context) error {
	m.resets++
	m.records = map[string]store.Record{}
	return nil
}

func (m *memoryStore) Close() error { return nil }

func cosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

func corpus() []story.Story {
	return []story.Story{
		{Title: "Dune", Content: "Paul Atreides rides the sandworm. Paul becomes Muad'Dib."},
		{Title: "Rings", Content: "Frodo leaves the Shire. Frodo reaches Mordor."},
		{Title: "Thrones", Content: "Arya Stark flees King's Landing. Arya trains in Braavos. Arya returns north."},
	}
}

func newTestIngester(t *testing.T, index store.VectorStore, embedder rag.Embedder) *Ingester {
	t.Helper()
	splitter, err := rag.NewSplitter(rag.StrategyFixed, 40, 10)
	require.NoError(t, err)
	return &Ingester{
		Stories:   story.NewStore(t.TempDir() + "/stories.json"),
		Splitter:  splitter,
		Embedder:  embedder,
		Index:     index,
		BatchSize: 2,
	}
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	index := newMemoryStore()
	embedder := &keywordEmbedder{}
	in := newTestIngester(t, index, embedder)
	src := &staticSource{stories: corpus()}

	t.Run("first run indexes everything", func(t *testing.T) {
		result, err := in.Ingest(ctx, src, false)
		require.NoError(t, err)

		assert.False(t, result.Skipped)
		assert.Equal(t, 3, result.Stories)
		assert.Equal(t, 3, result.Index.Stories)
		assert.Equal(t, result.Index.Chunks, len(index.records))
		assert.Contains(t, index.records, store.RecordID("Thrones", 0))

		saved, err := in.Stories.Load()
		require.NoError(t, err)
		assert.Equal(t, corpus(), saved)
	})

	t.Run("second run skips embedding", func(t *testing.T) {
		calls := embedder.calls
		before := len(index.records)

		result, err := in.Ingest(ctx, src, false)
		require.NoError(t, err)

		assert.True(t, result.Skipped)
		assert.Equal(t, int64(before), result.Existing)
		assert.Equal(t, calls, embedder.calls)
		assert.Zero(t, index.resets)
	})

	t.Run("rebuild resets and re-embeds", func(t *testing.T) {
		smaller := &staticSource{stories: corpus()[2:]}
		result, err := in.Ingest(ctx, smaller, true)
		require.NoError(t, err)

		assert.False(t, result.Skipped)
		assert.Equal(t, 1, index.resets)
		assert.Equal(t, 1, result.Index.Stories)
		for id := range index.records {
			assert.True(t, strings.HasPrefix(id, "Thrones_"), "stale record %s survived rebuild", id)
		}

		titles, err := in.Stories.Titles()
		require.NoError(t, err)
		assert.Equal(t, []string{"Thrones"}, titles)
	})
}

func TestIngest_SourceError(t *testing.T) {
	index := newMemoryStore()
	in := newTestIngester(t, index, &keywordEmbedder{})

	_, err := in.Ingest(context.Background(), &staticSource{err: errors.New("bucket not found")}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket not found")
	assert.Empty(t, index.records)
}

// flakyEmbedder fails its failOn-th call
type flakyEmbedder struct {
	keywordEmbedder
	failOn int
}

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([]rag.Embedding, error) {
	if f.calls+1 == f.failOn {
		f.calls++
		return nil, errors.New("connection reset by peer")
	}
	return f.keywordEmbedder.Embed(ctx, texts)
}

func TestIngest_PartialFailureDiscardsIndex(t *testing.T) {
	ctx := context.Background()
	index := newMemoryStore()
	embedder := &flakyEmbedder{failOn: 3}
	in := newTestIngester(t, index, embedder)
	src := &staticSource{stories: corpus()}

	result, err := in.Ingest(ctx, src, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Equal(t, 2, result.Index.Batches)
	assert.Equal(t, 1, index.resets)
	assert.Empty(t, index.records)

	// the next run embeds from scratch instead of trusting the partial index
	embedder.failOn = 0
	result, err = in.Ingest(ctx, src, false)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Zero(t, result.Existing)
	assert.Equal(t, result.Index.Chunks, len(index.records))
}

func TestIngestThenFind(t *testing.T) {
	ctx := context.Background()
	index := newMemoryStore()
	embedder := &keywordEmbedder{}
	in := newTestIngester(t, index, embedder)

	_, err := in.Ingest(ctx, &staticSource{stories: corpus()}, false)
	require.NoError(t, err)

	retriever, err := rag.NewRetriever(embedder, index)
	require.NoError(t, err)

	verifyModel := presenceModel("Arya Stark flees")
	extractModel := llm.NewMockLLM(aryaProfile)
	verifier, err := character.NewVerifier(verifyModel, nil)
	require.NoError(t, err)
	extractor, err := character.NewExtractor(extractModel, nil)
	require.NoError(t, err)

	p, err := NewPipeline(retriever, in.Stories, verifier, extractor, DefaultPipelineOptions())
	require.NoError(t, err)

	result, err := p.FindCharacter(ctx, "Arya Stark")
	require.NoError(t, err)

	require.NotEmpty(t, result.Candidates)
	assert.Equal(t, "Thrones", result.Candidates[0].StoryTitle)
	assert.Equal(t, StatusFound, result.Status)
	assert.Equal(t, "Thrones", result.StoryTitle)
	assert.Equal(t, "Arya Stark", result.Profile.Name)
	assert.Equal(t, 1, verifyModel.Calls())
	assert.Equal(t, 1, extractModel.Calls())

	path, err := character.SaveProfile(result.Profile, "Arya Stark", t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestFindCharacter_EmptyIndexAfterReset(t *testing.T) {
	index := newMemoryStore()
	embedder := &keywordEmbedder{}
	retriever, err := rag.NewRetriever(embedder, index)
	require.NoError(t, err)

	p := newTestPipeline(t, retriever, mapLookup{}, presenceModel("Arya"), llm.NewMockLLM(aryaProfile))
	result, err := p.FindCharacter(context.Background(), "Arya Stark")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, result.Status)
}

func TestFindCharacter_ThronesScenario(t *testing.T) {
	ctx := context.Background()
	index := newMemoryStore()
	embedder := &keywordEmbedder{}
	in := newTestIngester(t, index, embedder)

	thrones := story.Story{Title: "Thrones", Content: "Eddard Stark had a daughter, Arya Stark."}
	_, err := in.Ingest(ctx, &staticSource{stories: []story.Story{thrones}}, false)
	require.NoError(t, err)

	retriever, err := rag.NewRetriever(embedder, index)
	require.NoError(t, err)

	extractModel := llm.NewMockLLM(`{"name": "Arya Stark", "storyTitle": "Thrones", "summary": "Daughter of Eddard Stark.",
		"relations": [{"name": "Eddard Stark", "relation": "Father"}], "characterType": "side character"}`)
	p := newTestPipeline(t, retriever, in.Stories, presenceModel(thrones.Content), extractModel)

	result, err := p.FindCharacter(ctx, "Arya Stark")
	require.NoError(t, err)
	require.Equal(t, StatusFound, result.Status)
	assert.Equal(t, "Thrones", result.Profile.StoryTitle)
	assert.Equal(t, []character.Relation{{Name: "Eddard Stark", Relation: "Father"}}, result.Profile.Relations)
	assert.Contains(t, extractModel.LastPrompt, thrones.Content)
}
