package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// LangchainLLM runs prompts through any langchaingo model.
type LangchainLLM struct {
	model  llms.Model
	config Config
}

// NewLangchainLLM wraps an existing langchaingo model
func NewLangchainLLM(model llms.Model, config Config) *LangchainLLM {
	return &LangchainLLM{model: model, config: config}
}

// NewOllamaLLM creates a local Ollama model, e.g. llama3
func NewOllamaLLM(config Config) (*LangchainLLM, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("%w: missing model name", ErrInvalidConfig)
	}

	opts := []ollama.Option{ollama.WithModel(config.Model)}
	if config.Endpoint != "" {
		opts = append(opts, ollama.WithServerURL(config.Endpoint))
	}
	model, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return NewLangchainLLM(model, config), nil
}

// Generate implements LLM
func (l *LangchainLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt cannot be empty", ErrInvalidConfig)
	}

	opts := []llms.CallOption{llms.WithTemperature(l.config.Temperature)}
	if l.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(l.config.MaxTokens))
	}
	if l.config.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}

	response, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLLMFailed, err)
	}
	return response, nil
}
