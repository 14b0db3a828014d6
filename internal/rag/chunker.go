package rag

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

var ErrInvalidChunkParams = errors.New("invalid chunk parameters")

// Chunking strategies accepted by NewSplitter
const (
	StrategyFixed     = "fixed"
	StrategyRecursive = "recursive"
)

// Chunk is a contiguous piece of a story's content. Index is 0-based
// within the story.
type Chunk struct {
	StoryTitle string `json:"story_title"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
}

// Splitter turns text into ordered chunks. It matches langchaingo's
// textsplitter.TextSplitter so those splitters can be used directly.
type Splitter interface {
	SplitText(text string) ([]string, error)
}

// FixedSplitter produces windows of Size runes advancing by Size-Overlap.
type FixedSplitter struct {
	Size    int
	Overlap int
}

// SplitText implements Splitter
func (f FixedSplitter) SplitText(text string) ([]string, error) {
	return SplitFixed(text, f.Size, f.Overlap)
}

// SplitFixed splits text into windows of size runes, each starting
// size-overlap runes after the previous one. The final window may be
// shorter and always ends at the end of text. Empty text yields no chunks.
func SplitFixed(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunkParams, size, overlap)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return []string{}, nil
	}

	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// NewSplitter returns the splitter for the given strategy
func NewSplitter(strategy string, size, overlap int) (Splitter, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunkParams, size, overlap)
	}

	switch strategy {
	case "", StrategyFixed:
		return FixedSplitter{Size: size, Overlap: overlap}, nil
	case StrategyRecursive:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidChunkParams, strategy)
	}
}

// ChunkStory splits a story's content and tags each piece with its title
// and position.
func ChunkStory(title, content string, splitter Splitter) ([]Chunk, error) {
	texts, err := splitter.SplitText(content)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk %q: %w", title, err)
	}

	chunks := make([]Chunk, 0, len(texts))
	for _, text := range texts {
		if text == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			StoryTitle: title,
			Index:      len(chunks),
			Text:       text,
		})
	}
	return chunks, nil
}
