package llm

import (
	"context"
	"net/http"

	"github.com/Harshitk-cp/factgate/internal/domain"
)

const (
	cerebrasAPIURL = "https://api.cerebras.ai/v1/chat/completions"
	cerebrasModel  = "llama-3.3-70b"
)

// CerebrasClient talks to the OpenAI-compatible Cerebras inference API.
type CerebrasClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewCerebrasClient(apiKey string) *CerebrasClient {
	return &CerebrasClient{
		apiKey:     apiKey,
		baseURL:    cerebrasAPIURL,
		model:      cerebrasModel,
		httpClient: &http.Client{},
	}
}

func (c *CerebrasClient) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	return completeChat(ctx, c.httpClient, "cerebras", c.baseURL, c.apiKey, buildChatRequest(c.model, prompt, opts))
}
