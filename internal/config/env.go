package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that supply provider API keys.
const (
	EnvAIMLAPIKey    = "AIMLAPI_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenRouterKey = "OPENROUTER_API_KEY"
	EnvGroqKey       = "GROQ_API_KEY"
	EnvVLLMKey       = "VLLM_API_KEY"

	// EnvOpenAIBase points the openai provider at another compatible
	// endpoint, e.g. https://api.aimlapi.com.
	EnvOpenAIBase = "OPENAI_BASE_URL"
)

// LoadEnv loads a dotenv file into the process environment. Variables that
// are already set are left untouched. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv fills empty provider API keys from the environment. OPENAI_BASE_URL
// replaces the openai base URL unless the config file changed it.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvOpenAIBase); v != "" {
		if base := c.Providers.OpenAI.APIBase; base == "" || base == DefaultOpenAIBase {
			c.Providers.OpenAI.APIBase = v
		}
	}

	keys := []struct {
		target *string
		env    string
	}{
		{&c.Providers.AIMLAPI.APIKey, EnvAIMLAPIKey},
		{&c.Providers.OpenAI.APIKey, EnvOpenAIKey},
		{&c.Providers.OpenRouter.APIKey, EnvOpenRouterKey},
		{&c.Providers.Groq.APIKey, EnvGroqKey},
		{&c.Providers.VLLM.APIKey, EnvVLLMKey},
	}
	for _, k := range keys {
		if *k.target != "" {
			continue
		}
		if v := os.Getenv(k.env); v != "" {
			*k.target = v
		}
	}
}
