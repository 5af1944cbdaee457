package providers

import (
	"fmt"

	"github.com/hkuds/autopy/internal/config"
)

// Default models for each provider
const (
	DefaultAIMLAPIModel    = "gpt-4o-mini"
	DefaultOpenAIModel     = "gpt-4o"
	DefaultOpenRouterModel = "openai/gpt-4o-mini"
	DefaultGroqModel       = "llama-3.1-70b-versatile"
	DefaultVLLMModel       = "default"
)

// Default API base URLs, used when the config leaves them empty.
const (
	DefaultAIMLAPIBase    = "https://api.aimlapi.com"
	DefaultOpenAIBase     = "https://api.openai.com/v1"
	DefaultOpenRouterBase = "https://openrouter.ai/api/v1"
	DefaultGroqBase       = "https://api.groq.com/openai/v1"
)

// NewProviderFromConfig creates a Provider based on the configuration.
// An explicit generator.provider wins; otherwise it checks providers in
// priority order: AIMLAPI > OpenAI > OpenRouter > Groq > VLLM.
func NewProviderFromConfig(cfg *config.Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Generator.Provider != "" {
		return NewProviderByName(cfg, cfg.Generator.Provider)
	}

	name, _, _ := cfg.GetActiveProvider()
	if name == "" {
		return nil, fmt.Errorf("no LLM provider configured: set %s or %s, or configure a provider in ~/.autopy/config.json",
			config.EnvAIMLAPIKey, config.EnvOpenAIKey)
	}
	return NewProviderByName(cfg, name)
}

// NewProviderByName creates a specific provider by name.
// This is useful when you want to explicitly use a specific provider regardless of priority.
func NewProviderByName(cfg *config.Config, name string) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	switch name {
	case "aimlapi":
		p := cfg.Providers.AIMLAPI
		if p.APIKey == "" {
			return nil, fmt.Errorf("aimlapi API key is not configured")
		}
		return NewOpenAIProvider(name, p.APIKey, orDefault(p.APIBase, DefaultAIMLAPIBase), DefaultAIMLAPIModel), nil

	case "openai":
		p := cfg.Providers.OpenAI
		if p.APIKey == "" {
			return nil, fmt.Errorf("openai API key is not configured")
		}
		return NewOpenAIProvider(name, p.APIKey, orDefault(p.APIBase, DefaultOpenAIBase), DefaultOpenAIModel), nil

	case "openrouter":
		p := cfg.Providers.OpenRouter
		if p.APIKey == "" {
			return nil, fmt.Errorf("openrouter API key is not configured")
		}
		return NewOpenAIProvider(name, p.APIKey, orDefault(p.APIBase, DefaultOpenRouterBase), DefaultOpenRouterModel), nil

	case "groq":
		p := cfg.Providers.Groq
		if p.APIKey == "" {
			return nil, fmt.Errorf("groq API key is not configured")
		}
		return NewOpenAIProvider(name, p.APIKey, orDefault(p.APIBase, DefaultGroqBase), DefaultGroqModel), nil

	case "vllm":
		p := cfg.Providers.VLLM
		if p.APIBase == "" {
			return nil, fmt.Errorf("vllm API base URL is not configured")
		}
		return NewOpenAIProvider(name, p.APIKey, p.APIBase, DefaultVLLMModel), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// ListAvailableProviders returns a list of provider names that are configured
// and can be used.
func ListAvailableProviders(cfg *config.Config) []string {
	if cfg == nil {
		return nil
	}

	var providers []string

	if cfg.Providers.AIMLAPI.APIKey != "" {
		providers = append(providers, "aimlapi")
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		providers = append(providers, "openai")
	}
	if cfg.Providers.OpenRouter.APIKey != "" {
		providers = append(providers, "openrouter")
	}
	if cfg.Providers.Groq.APIKey != "" {
		providers = append(providers, "groq")
	}
	if cfg.Providers.VLLM.APIBase != "" {
		providers = append(providers, "vllm")
	}

	return providers
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
