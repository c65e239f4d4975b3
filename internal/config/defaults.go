package config

import "time"

// defaultModels maps each provider to the model used when none is configured.
var defaultModels = map[ProviderType]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderGemini:    "gemini-2.0-flash",
	ProviderAnthropic: "claude-haiku-4-5-20251001",
	ProviderOllama:    "llama3",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          ProviderOpenAI,
			Model:             defaultModels[ProviderOpenAI],
			Timeout:           20 * time.Second,
			RequestsPerMinute: 60,
			Temperature:       0.3,
		},
		Database: DatabaseConfig{
			Path: "data/pulse.db",
		},
		Scheduler: SchedulerConfig{
			Timezone:    "America/Sao_Paulo",
			PoolSize:    4,
			DailyCron:   "0 1 * * *",
			WeeklyCron:  "0 6 * * 1",
			MonthlyCron: "0 7 1 * *",
			ArchiveCron: "0 3 * * 0",
		},
		Reports: ReportsConfig{
			Workers:          2,
			QueueSize:        64,
			ArchiveAfterDays: 365,
		},
		Alerts: AlertsConfig{
			RiskThreshold: 70,
			Topic:         "risk-alerts",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultModel returns the default model for the given provider, or "" if
// the provider is unknown.
func DefaultModel(provider ProviderType) string {
	return defaultModels[provider]
}
