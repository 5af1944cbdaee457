package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config represents the root configuration structure for AutoPy.
type Config struct {
	Generator GeneratorConfig `json:"generator"`
	Providers ProvidersConfig `json:"providers"`
	Loop      LoopConfig      `json:"loop"`
	Sandbox   SandboxConfig   `json:"sandbox"`
	Log       LogConfig       `json:"log"`
	History   HistoryConfig   `json:"history"`
}

// GeneratorConfig holds the code generation request settings.
type GeneratorConfig struct {
	// Provider selects a provider by name. Empty picks the first configured
	// provider in priority order.
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
	// SystemPrompt overrides the built-in instruction when set.
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// ProvidersConfig holds all LLM provider configurations.
type ProvidersConfig struct {
	AIMLAPI    ProviderConfig `json:"aimlapi"`
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	Groq       ProviderConfig `json:"groq"`
	VLLM       ProviderConfig `json:"vllm"`
}

// ProviderConfig represents a standard LLM provider configuration.
type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	APIBase string `json:"apiBase,omitempty"`
}

// LoopConfig holds refinement loop settings.
type LoopConfig struct {
	MaxIterations int    `json:"maxIterations"`
	RetryDelayMs  int    `json:"retryDelayMs"`
	DefaultTask   string `json:"defaultTask"`
}

// SandboxConfig holds container execution settings.
type SandboxConfig struct {
	Image                 string  `json:"image"`
	MemoryMB              int64   `json:"memoryMB"`
	CPUPercent            float64 `json:"cpuPercent"`
	MaxProcesses          int64   `json:"maxProcesses"`
	TimeoutSeconds        int     `json:"timeoutSeconds"`
	InstallTimeoutSeconds int     `json:"installTimeoutSeconds"`
	InstallDependencies   bool    `json:"installDependencies"`
	UseGVisor             bool    `json:"useGVisor"`
}

// LogConfig holds run log settings.
type LogConfig struct {
	Dir    string `json:"dir"`
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or text
}

// HistoryConfig holds run history settings.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

// DefaultOpenAIBase is the openai provider's default base URL.
const DefaultOpenAIBase = "https://api.openai.com/v1"

// DefaultConfig returns a new Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Generator: GeneratorConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   2048,
			Temperature: 0.2,
		},
		Providers: ProvidersConfig{
			AIMLAPI: ProviderConfig{
				APIBase: "https://api.aimlapi.com",
			},
			OpenAI: ProviderConfig{
				APIBase: DefaultOpenAIBase,
			},
			OpenRouter: ProviderConfig{
				APIBase: "https://openrouter.ai/api/v1",
			},
			Groq: ProviderConfig{
				APIBase: "https://api.groq.com/openai/v1",
			},
		},
		Loop: LoopConfig{
			MaxIterations: 5,
			RetryDelayMs:  1000,
			DefaultTask:   "Write a script that prints the Fibonacci series up to 100.",
		},
		Sandbox: SandboxConfig{
			Image:                 "python:3.9",
			MemoryMB:              128,
			CPUPercent:            0.5,
			MaxProcesses:          64,
			TimeoutSeconds:        30,
			InstallTimeoutSeconds: 120,
			InstallDependencies:   true,
		},
		Log: LogConfig{
			Dir:    "~/.autopy/logs",
			Level:  "info",
			Format: "json",
		},
		History: HistoryConfig{
			Enabled: true,
			Dir:     "~/.autopy/history",
		},
	}
}

// LogDir returns the absolute path to the log directory.
func (c *Config) LogDir() string {
	dir := c.Log.Dir
	if dir == "" {
		dir = "~/.autopy/logs"
	}
	return expandPath(dir)
}

// HistoryDir returns the absolute path to the run history directory.
func (c *Config) HistoryDir() string {
	dir := c.History.Dir
	if dir == "" {
		dir = "~/.autopy/history"
	}
	return expandPath(dir)
}

// RetryDelay returns the pause between loop iterations.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Loop.RetryDelayMs) * time.Millisecond
}

// SandboxTimeout returns the program run timeout.
func (c *Config) SandboxTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSeconds) * time.Second
}

// SandboxInstallTimeout returns the per-package install timeout.
func (c *Config) SandboxInstallTimeout() time.Duration {
	return time.Duration(c.Sandbox.InstallTimeoutSeconds) * time.Second
}

// GetActiveProvider returns the first configured provider's name, API key, and API base URL.
// It checks providers in order: AIMLAPI, OpenAI, OpenRouter, Groq, VLLM.
// Returns empty strings if no provider is configured.
func (c *Config) GetActiveProvider() (name string, apiKey string, apiBase string) {
	if c.Providers.AIMLAPI.APIKey != "" {
		return "aimlapi", c.Providers.AIMLAPI.APIKey, c.Providers.AIMLAPI.APIBase
	}
	if c.Providers.OpenAI.APIKey != "" {
		return "openai", c.Providers.OpenAI.APIKey, c.Providers.OpenAI.APIBase
	}
	if c.Providers.OpenRouter.APIKey != "" {
		return "openrouter", c.Providers.OpenRouter.APIKey, c.Providers.OpenRouter.APIBase
	}
	if c.Providers.Groq.APIKey != "" {
		return "groq", c.Providers.Groq.APIKey, c.Providers.Groq.APIBase
	}
	// VLLM may work without API key for local deployments
	if c.Providers.VLLM.APIBase != "" {
		return "vllm", c.Providers.VLLM.APIKey, c.Providers.VLLM.APIBase
	}
	return "", "", ""
}

// expandPath expands ~ to the user's home directory and resolves the path.
func expandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand ~ to home directory
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if len(path) == 1 {
			return home
		}
		// Handle ~/path and ~path cases
		if path[1] == '/' || path[1] == filepath.Separator {
			path = filepath.Join(home, path[2:])
		} else {
			path = filepath.Join(home, path[1:])
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
