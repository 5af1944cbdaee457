package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI-compatible APIs.
// This works with OpenAI, AI/ML API, OpenRouter, Groq, vLLM and other
// OpenAI-compatible endpoints.
type OpenAIProvider struct {
	name         string
	defaultModel string
	client       *openai.Client
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(apiBase, "/")
	cfg.HTTPClient = &http.Client{
		Timeout:   120 * time.Second,
		Transport: &headerTransport{headers: providerHeaders(name), base: http.DefaultTransport},
	}

	return &OpenAIProvider{
		name:         name,
		defaultModel: defaultModel,
		client:       openai.NewClientWithConfig(cfg),
	}
}

// Name returns the provider's name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// DefaultModel returns the provider's default model.
func (p *OpenAIProvider) DefaultModel() string {
	return p.defaultModel
}

// Chat sends a chat completion request to the OpenAI-compatible API.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("API error (status %d): %s: %w", apiErr.HTTPStatusCode, apiErr.Message, err)
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response: %w", ErrEmptyResponse)
	}
	choice := resp.Choices[0]

	return &ChatResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// providerHeaders returns extra headers some endpoints expect.
func providerHeaders(name string) map[string]string {
	switch name {
	case "openrouter":
		return map[string]string{
			"HTTP-Referer": "https://github.com/hkuds/autopy",
			"X-Title":      "AutoPy",
		}
	}
	return nil
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
