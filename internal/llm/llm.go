// Package llm provides a provider-agnostic language model interface with
// implementations for OpenAI-compatible endpoints (OpenAI, Groq), local
// models through langchaingo, and a deterministic mock for tests.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrLLMFailed     = errors.New("LLM request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
)

// Supported providers
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// LLM defines the interface for interacting with language models.
// Implementations must be stateless and thread-safe.
type LLM interface {
	// Generate produces text from a prompt using the configured model.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds common configuration options for LLM providers.
type Config struct {
	Provider string

	// Model specifies the model identifier (e.g., "gpt-4o-mini", "llama3-8b-8192")
	Model string

	// Endpoint overrides the provider base URL (Groq, a proxy, a local Ollama)
	Endpoint string

	// Temperature is always sent, so 0 means deterministic
	Temperature float64

	// MaxTokens limits the response length (0 = use provider default)
	MaxTokens int

	// JSONMode asks the provider to constrain output to a JSON object
	JSONMode bool

	// APIKey is the authentication key for the provider
	APIKey string
}

// DefaultConfig returns defaults for structured character queries.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderOpenAI,
		Model:     "gpt-4o-mini",
		MaxTokens: 2000,
		JSONMode:  true,
	}
}

// New creates the LLM for config.Provider
func New(config Config) (LLM, error) {
	switch config.Provider {
	case "", ProviderOpenAI:
		return NewOpenAILLM(config)
	case ProviderOllama:
		return NewOllamaLLM(config)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrInvalidConfig, config.Provider)
	}
}
