package llm

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/factgate/internal/domain"
)

// MockClient is a configurable LLM client for testing.
// GenerateFunc, when set, takes precedence over Response and Err.
// Safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	Response     string
	Err          error
	GenerateFunc func(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error)

	// Call tracking for assertions
	Calls []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		Response: "Mock response",
	}
}

func (c *MockClient) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, prompt)
	fn, resp, err := c.GenerateFunc, c.Response, c.Err
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, opts)
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls and resets responses to defaults.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Response = "Mock response"
	c.Err = nil
	c.GenerateFunc = nil
	c.Calls = nil
}
