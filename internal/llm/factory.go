package llm

import (
	"context"
	"os"
	"strings"
)

// ProviderConfig selects and configures one backend. An empty APIKey is
// read from the provider's conventional environment variable.
type ProviderConfig struct {
	Type              string
	Model             string
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
}

var apiKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GOOGLE_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// NewProvider creates a provider from the given settings. Supported types:
// "openai", "gemini", "anthropic", "ollama". All failures are *ConfigError.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		return nil, &ConfigError{Provider: cfg.Type, Reason: "provider type is required"}
	}
	if cfg.Model == "" {
		return nil, &ConfigError{Provider: typ, Reason: "model is required"}
	}

	apiKey := cfg.APIKey
	if envVar, ok := apiKeyEnv[typ]; ok && apiKey == "" {
		apiKey = os.Getenv(envVar)
		if apiKey == "" {
			return nil, &ConfigError{Provider: typ, Reason: envVar + " environment variable is not set"}
		}
	}

	var p Provider
	switch typ {
	case "openai":
		p = NewOpenAIProvider(apiKey, cfg.Model, cfg.BaseURL)

	case "gemini":
		g, err := NewGeminiProvider(ctx, apiKey, cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, &ConfigError{Provider: typ, Reason: Redact(err.Error())}
		}
		p = g

	case "anthropic":
		p = NewAnthropicProvider(apiKey, cfg.Model, cfg.BaseURL)

	case "ollama":
		host := cfg.BaseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		p = NewOllamaProvider(host, cfg.Model)

	default:
		return nil, &ConfigError{Provider: typ, Reason: "unsupported provider type"}
	}

	if cfg.RequestsPerMinute > 0 {
		p = NewRateLimitedProvider(p, cfg.RequestsPerMinute)
	}
	return p, nil
}
