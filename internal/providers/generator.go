package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/hkuds/autopy/internal/log"
)

// DefaultSystemPrompt asks for bare, runnable Python.
const DefaultSystemPrompt = "You are a professional Python developer. " +
	"Your output should be fully functional Python code, provided without comments, " +
	"introductions, summaries, or explanations – just plain Python code."

// CodeGeneratorConfig is the configuration of a CodeGenerator.
type CodeGeneratorConfig struct {
	Provider Provider
	// Model defaults to the provider's default model.
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	Logger       log.Logger
}

func (c *CodeGeneratorConfig) defaults() error {
	if c.Provider == nil {
		return fmt.Errorf("provider is required")
	}
	if c.Model == "" {
		c.Model = c.Provider.DefaultModel()
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "providers.CodeGenerator", "provider": c.Provider.Name()})
	return nil
}

// CodeGenerator turns a task description into a raw completion using a
// fixed system instruction and a single user message.
type CodeGenerator struct {
	cfg CodeGeneratorConfig
}

// NewCodeGenerator creates a CodeGenerator.
func NewCodeGenerator(cfg CodeGeneratorConfig) (*CodeGenerator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &CodeGenerator{cfg: cfg}, nil
}

// Model returns the model identifier sent with every request.
func (g *CodeGenerator) Model() string {
	return g.cfg.Model
}

// Generate requests code for task and returns the raw completion text.
func (g *CodeGenerator) Generate(ctx context.Context, task string) (string, error) {
	resp, err := g.cfg.Provider.Chat(ctx, ChatRequest{
		Model: g.cfg.Model,
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: g.cfg.SystemPrompt},
			{Role: RoleUser, Content: task},
		},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%s chat failed: %w", g.cfg.Provider.Name(), err)
	}

	if strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyResponse
	}

	g.cfg.Logger.Debugf("Completion: model=%s finish=%s tokens=%d", resp.Model, resp.FinishReason, resp.Usage.TotalTokens)
	return resp.Content, nil
}
