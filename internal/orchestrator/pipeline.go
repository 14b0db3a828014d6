package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Yates-Labs/dramatis/internal/character"
	"github.com/Yates-Labs/dramatis/internal/rag"
	"github.com/Yates-Labs/dramatis/internal/rag/store"
)

// ErrEmptyCharacterName is returned when FindCharacter gets a blank name
var ErrEmptyCharacterName = errors.New("character name cannot be empty")

// Status is the outcome of a character lookup.
type Status string

const (
	// StatusFound means a story was verified and a profile extracted
	StatusFound Status = "found"

	// StatusNoProfile means a story was verified but extraction gave nothing
	StatusNoProfile Status = "no_profile"

	// StatusNotFound means no candidate story was verified
	StatusNotFound Status = "not_found"
)

// VerifyFailure records a candidate whose verification call failed, as
// opposed to one the model judged not to contain the character.
type VerifyFailure struct {
	StoryTitle string `json:"storyTitle"`
	Error      string `json:"error"`
}

// Result is the outcome of one FindCharacter run.
type Result struct {
	RunID          string             `json:"runId"`
	Character      string             `json:"character"`
	Status         Status             `json:"status"`
	StoryTitle     string             `json:"storyTitle,omitempty"`
	Profile        *character.Profile `json:"profile,omitempty"`
	ExtractError   string             `json:"extractError,omitempty"`
	Candidates     []rag.Candidate    `json:"candidates"`
	VerifyFailures []VerifyFailure    `json:"verifyFailures,omitempty"`
}

// CandidateFinder returns ranked candidate stories for a query
type CandidateFinder interface {
	Candidates(ctx context.Context, query string, topK int) ([]rag.Candidate, error)
}

// StoryLookup maps story titles to their full text
type StoryLookup interface {
	Lookup() (map[string]string, error)
}

// PipelineOptions tunes a Pipeline.
type PipelineOptions struct {
	TopK int

	// IndexTimeout bounds the query embedding and search (0 = no limit)
	IndexTimeout time.Duration

	// LLMTimeout bounds each verification and extraction call (0 = no limit)
	LLMTimeout time.Duration

	Logger *slog.Logger
}

// DefaultPipelineOptions returns the options used by the CLI defaults
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		TopK:         5,
		IndexTimeout: 30 * time.Second,
		LLMTimeout:   60 * time.Second,
	}
}

// Pipeline looks a character up: retrieve candidate stories, verify them
// in rank order and extract a profile from the first verified story.
type Pipeline struct {
	finder    CandidateFinder
	stories   StoryLookup
	verifier  *character.Verifier
	extractor *character.Extractor
	opts      PipelineOptions
	logger    *slog.Logger
	closer    func() error
}

// NewPipeline assembles a pipeline from its parts
func NewPipeline(
	finder CandidateFinder,
	stories StoryLookup,
	verifier *character.Verifier,
	extractor *character.Extractor,
	opts PipelineOptions,
) (*Pipeline, error) {
	if finder == nil || stories == nil || verifier == nil || extractor == nil {
		return nil, fmt.Errorf("pipeline requires a candidate finder, story lookup, verifier and extractor")
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultPipelineOptions().TopK
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		finder:    finder,
		stories:   stories,
		verifier:  verifier,
		extractor: extractor,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Close releases the index connection when the pipeline owns one.
func (p *Pipeline) Close() error {
	if p.closer != nil {
		return p.closer()
	}
	return nil
}

// FindCharacter runs one lookup. A character that cannot be found is a
// normal Result with StatusNotFound; an error means the lookup itself could
// not run (index unreachable, query embedding failed, story store unreadable).
func (p *Pipeline) FindCharacter(ctx context.Context, name string) (Result, error) {
	name = strings.TrimSpace(name)
	result := Result{
		RunID:      uuid.NewString(),
		Character:  name,
		Status:     StatusNotFound,
		Candidates: []rag.Candidate{},
	}
	if name == "" {
		return result, ErrEmptyCharacterName
	}
	logger := p.logger.With("run_id", result.RunID, "character", name)
	logger.Info("character lookup started", "top_k", p.opts.TopK)

	searchCtx, cancel := withTimeout(ctx, p.opts.IndexTimeout)
	candidates, err := p.finder.Candidates(searchCtx, name, p.opts.TopK)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrEmptyIndex) {
			logger.Warn("index is empty, run ingest first")
			return result, nil
		}
		return result, fmt.Errorf("candidate search failed: %w", err)
	}
	result.Candidates = candidates
	logger.Debug("candidates ranked", "count", len(candidates))

	contents, err := p.stories.Lookup()
	if err != nil {
		return result, fmt.Errorf("failed to read story store: %w", err)
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		text, ok := contents[candidate.StoryTitle]
		if !ok {
			logger.Warn("candidate story missing from story store", "story", candidate.StoryTitle)
			continue
		}

		verifyCtx, cancel := withTimeout(ctx, p.opts.LLMTimeout)
		verdict := p.verifier.Verify(verifyCtx, text, name)
		cancel()

		if verdict.Failed() {
			result.VerifyFailures = append(result.VerifyFailures, VerifyFailure{
				StoryTitle: candidate.StoryTitle,
				Error:      verdict.Err.Error(),
			})
			continue
		}
		if !verdict.Present {
			logger.Debug("character not in candidate", "story", candidate.StoryTitle)
			continue
		}

		logger.Info("character verified", "story", candidate.StoryTitle)
		result.StoryTitle = candidate.StoryTitle

		extractCtx, cancel := withTimeout(ctx, p.opts.LLMTimeout)
		extraction := p.extractor.Extract(extractCtx, candidate.StoryTitle, text, name)
		cancel()

		if extraction.Found() {
			result.Status = StatusFound
			result.Profile = extraction.Profile
		} else {
			result.Status = StatusNoProfile
			if extraction.Err != nil {
				result.ExtractError = extraction.Err.Error()
			}
		}
		logger.Info("character lookup finished", "status", result.Status)
		return result, nil
	}

	logger.Info("character not found in any candidate story",
		"candidates", len(candidates), "verify_failures", len(result.VerifyFailures))
	return result, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
