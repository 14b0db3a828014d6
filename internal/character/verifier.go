package character

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Yates-Labs/dramatis/internal/llm"
)

// Verifier asks a model whether a character appears in a story.
type Verifier struct {
	model   llm.LLM
	prompts *Prompts
	logger  *slog.Logger
}

// NewVerifier creates a verifier. The model should run at temperature 0.
func NewVerifier(model llm.LLM, logger *slog.Logger) (*Verifier, error) {
	p, err := NewPrompts()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{model: model, prompts: p, logger: logger}, nil
}

// Verify never returns an error directly; call and schema failures are
// carried in Verdict.Err so callers can move on to the next candidate.
func (v *Verifier) Verify(ctx context.Context, storyText, characterName string) Verdict {
	prompt, err := v.prompts.Verify(storyText, characterName)
	if err != nil {
		return Verdict{Err: fmt.Errorf("%w: render prompt: %v", ErrModelCallFailed, err)}
	}

	reply, err := v.model.Generate(ctx, prompt)
	if err != nil {
		v.logger.Warn("verification call failed", "character", characterName, "error", err)
		return Verdict{Err: fmt.Errorf("%w: %w", ErrModelCallFailed, err)}
	}

	present, err := parsePresence(reply)
	if err != nil {
		v.logger.Warn("verification response rejected", "character", characterName, "error", err)
		return Verdict{Err: fmt.Errorf("%w: %w", ErrModelCallFailed, err)}
	}

	v.logger.Debug("verification complete", "character", characterName, "present", present)
	return Verdict{Present: present}
}
