// Package llm wraps the OpenAI-compatible chat-completion endpoint the
// summarization pipeline delegates to. Groq is the default provider; any
// endpoint speaking the same protocol works via BaseURL.
package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is the completion model used when config names none.
	DefaultModel = "llama-3.3-70b-versatile"
)

// Config holds the completion-service connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client is the completion-service client. One instance is shared by all
// pipeline runs; the underlying HTTP client is safe for concurrent use.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a client for the configured endpoint, falling back to
// the Groq defaults for anything unset.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	conf := openai.DefaultConfig(cfg.APIKey)
	conf.BaseURL = cfg.BaseURL
	return &Client{
		api:   openai.NewClientWithConfig(conf),
		model: cfg.Model,
	}
}

// Model returns the configured completion model name.
func (c *Client) Model() string { return c.model }

// Complete issues one chat completion and returns the generated text.
// Cancellation and deadlines propagate through ctx into the HTTP call.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	// The client library drops a zero temperature from the request body
	// (omitempty); the smallest nonzero float is its stand-in for an
	// explicit 0.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
