package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jerhadf/voice-computer-use/pkg/llm"
)

const (
	DefaultBaseURL = "https://api.anthropic.com/v1"
	DefaultVersion = "2023-06-01"
)

// Client implements the llm.Provider interface for the Anthropic Messages API.
type Client struct {
	config     *llm.Config
	httpClient *http.Client
}

// New creates a new Messages API client with the given configuration.
func New(config *llm.Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// messagesResponse is the Messages API response body.
type messagesResponse struct {
	ID         string             `json:"id"`
	Content    []llm.ContentBlock `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      llm.Usage          `json:"usage"`
}

// errorResponse is the Messages API error body.
type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a Messages request and returns the full response. Model and
// MaxTokens fall back to the client config when unset on the request.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	body := *req
	if body.Model == "" {
		body.Model = c.config.Model
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = c.config.MaxTokens
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = 4096
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	baseURL := c.config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	url := strings.TrimRight(baseURL, "/") + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	version := c.config.Version
	if version == "" {
		version = DefaultVersion
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", version)
	if c.config.Beta != "" {
		httpReq.Header.Set("anthropic-beta", c.config.Beta)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, respBody)
	}

	var msg messagesResponse
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return &llm.Response{
		ID:         msg.ID,
		Content:    msg.Content,
		StopReason: msg.StopReason,
		Usage:      msg.Usage,
	}, nil
}

func newAPIError(status int, body []byte) *llm.APIError {
	apiErr := &llm.APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Type = parsed.Error.Type
		apiErr.Message = parsed.Error.Message
	}
	return apiErr
}
