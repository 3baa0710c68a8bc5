package llm

import (
	"context"
	"time"
)

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and response parsing.
type Provider interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ProviderFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Version   string
	Beta      string
	Timeout   time.Duration
}
