package character

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Yates-Labs/dramatis/internal/llm"
)

// Extractor asks a model for a structured character profile.
type Extractor struct {
	model   llm.LLM
	prompts *Prompts
	logger  *slog.Logger
}

// NewExtractor creates an extractor
func NewExtractor(model llm.LLM, logger *slog.Logger) (*Extractor, error) {
	p, err := NewPrompts()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{model: model, prompts: p, logger: logger}, nil
}

// Extract returns the profile of characterName in the given story. An
// empty JSON object from the model yields an Extraction with no profile
// and no error.
func (e *Extractor) Extract(ctx context.Context, storyTitle, storyText, characterName string) Extraction {
	prompt, err := e.prompts.Extract(storyTitle, storyText, characterName)
	if err != nil {
		return Extraction{Err: fmt.Errorf("%w: render prompt: %v", ErrModelCallFailed, err)}
	}

	reply, err := e.model.Generate(ctx, prompt)
	if err != nil {
		e.logger.Warn("extraction call failed", "character", characterName, "story", storyTitle, "error", err)
		return Extraction{Err: fmt.Errorf("%w: %w", ErrModelCallFailed, err)}
	}

	profile, err := parseProfile(reply)
	if err != nil {
		e.logger.Warn("extraction response rejected", "character", characterName, "story", storyTitle, "error", err)
		return Extraction{Err: fmt.Errorf("%w: %w", ErrModelCallFailed, err)}
	}
	if profile == nil {
		e.logger.Info("model returned empty profile", "character", characterName, "story", storyTitle)
	}
	return Extraction{Profile: profile}
}
