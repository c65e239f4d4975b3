package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels: PULSE_LLM__PROVIDER -> llm.provider.
const EnvPrefix = "PULSE_"

// ValidationError reports a configuration value that prevents startup.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (PULSE_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel(cfg.LLM.Provider)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[ProviderType]bool{
	ProviderOpenAI:    true,
	ProviderGemini:    true,
	ProviderAnthropic: true,
	ProviderOllama:    true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return &ValidationError{Field: "llm.provider", Reason: "is required"}
	}
	if !validProviders[c.LLM.Provider] {
		return &ValidationError{Field: "llm.provider", Reason: fmt.Sprintf("%q must be one of openai, gemini, anthropic, ollama", c.LLM.Provider)}
	}
	if c.LLM.Model == "" {
		return &ValidationError{Field: "llm.model", Reason: "is required"}
	}
	if c.LLM.Timeout <= 0 {
		return &ValidationError{Field: "llm.timeout", Reason: "must be positive"}
	}
	if c.LLM.RequestsPerMinute < 0 {
		return &ValidationError{Field: "llm.requests_per_minute", Reason: "must be non-negative"}
	}

	if c.Database.Path == "" {
		return &ValidationError{Field: "database.path", Reason: "is required"}
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return &ValidationError{Field: "scheduler.timezone", Reason: err.Error()}
	}
	if c.Scheduler.PoolSize < 1 {
		return &ValidationError{Field: "scheduler.pool_size", Reason: "must be at least 1"}
	}
	for field, spec := range map[string]string{
		"scheduler.daily_cron":   c.Scheduler.DailyCron,
		"scheduler.weekly_cron":  c.Scheduler.WeeklyCron,
		"scheduler.monthly_cron": c.Scheduler.MonthlyCron,
		"scheduler.archive_cron": c.Scheduler.ArchiveCron,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return &ValidationError{Field: field, Reason: err.Error()}
		}
	}

	if c.Reports.Workers < 1 {
		return &ValidationError{Field: "reports.workers", Reason: "must be at least 1"}
	}
	if c.Reports.QueueSize < 1 {
		return &ValidationError{Field: "reports.queue_size", Reason: "must be at least 1"}
	}
	if c.Reports.ArchiveAfterDays < 1 {
		return &ValidationError{Field: "reports.archive_after_days", Reason: "must be at least 1"}
	}

	if c.Alerts.RiskThreshold < 0 || c.Alerts.RiskThreshold > 100 {
		return &ValidationError{Field: "alerts.risk_threshold", Reason: "must be within 0-100"}
	}
	if c.Alerts.Topic == "" {
		return &ValidationError{Field: "alerts.topic", Reason: "is required"}
	}

	return nil
}

// Location returns the scheduler timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGemini:
		return "GOOGLE_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}
