package llm

import (
	"context"
	"sync"
)

// MockLLM is a deterministic LLM implementation for testing.
type MockLLM struct {
	// Response is the fixed text returned by Generate.
	// If empty, "{}" is returned.
	Response string

	// ResponseFunc, if set, computes the reply from the prompt and takes
	// precedence over Response and Error.
	ResponseFunc func(prompt string) (string, error)

	// Error, if set, is returned by Generate instead of a response.
	Error error

	// LastPrompt stores the most recent prompt passed to Generate.
	LastPrompt string

	mu      sync.Mutex
	prompts []string
}

// NewMockLLM creates a mock LLM with the given fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a mock LLM that always returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Error: err}
}

// NewMockLLMFunc creates a mock LLM whose replies depend on the prompt.
func NewMockLLMFunc(fn func(prompt string) (string, error)) *MockLLM {
	return &MockLLM{ResponseFunc: fn}
}

// Generate records the prompt and returns the configured response.
func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.LastPrompt = prompt
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.ResponseFunc != nil {
		return m.ResponseFunc(prompt)
	}
	if m.Error != nil {
		return "", m.Error
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return "{}", nil
}

// Prompts returns every prompt received, in order.
func (m *MockLLM) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Calls returns the number of Generate calls.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
