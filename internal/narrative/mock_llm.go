package narrative

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// MockLLM is a deterministic LLM implementation for testing.
// It returns predictable responses based on prompt content.
type MockLLM struct {
	// Response is the fixed text returned by Generate.
	// If empty, a default response is generated from the prompt.
	Response string

	// Error, if set, is returned by Generate instead of a response.
	Error error

	// LastPrompt stores the most recent prompt passed to Generate.
	LastPrompt string

	// Calls counts Generate invocations.
	Calls int

	mu sync.Mutex
}

// NewMockLLM creates a mock LLM with the given fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a mock LLM that always returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Error: err}
}

// Generate returns the configured response or generates a deterministic one.
func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastPrompt = prompt
	m.Calls++

	if m.Error != nil {
		return "", m.Error
	}

	if m.Response != "" {
		return m.Response, nil
	}

	return generateMockResponse(prompt), nil
}

// generateMockResponse answers the character prompt: the not-found signal
// when the context never mentions the character, otherwise a minimal record.
func generateMockResponse(prompt string) string {
	name := between(prompt, "about the character ", " from the following story context.")
	title := between(prompt, "Story Title: ", "\n")
	passages := between(prompt, "Context:\n", "\n\nInstructions:")

	if name == "" || !strings.Contains(strings.ToLower(passages), strings.ToLower(name)) {
		return `{"error": "Character not found"}`
	}

	info := CharacterInfo{
		Name:          name,
		StoryTitle:    title,
		Summary:       name + " appears in " + title + ".",
		Relations:     []Relation{},
		CharacterType: Protagonist,
	}
	out, _ := json.Marshal(info)
	return string(out)
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	rest := s[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:j])
}
