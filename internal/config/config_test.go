package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LLM.Provider != ProviderOpenAI {
		t.Errorf("expected default provider %q, got %q", ProviderOpenAI, cfg.LLM.Provider)
	}
	if cfg.LLM.Timeout != 20*time.Second {
		t.Errorf("expected default timeout 20s, got %v", cfg.LLM.Timeout)
	}
	if cfg.Scheduler.PoolSize != 4 {
		t.Errorf("expected default pool_size 4, got %d", cfg.Scheduler.PoolSize)
	}
	if cfg.Reports.ArchiveAfterDays != 365 {
		t.Errorf("expected archive_after_days 365, got %d", cfg.Reports.ArchiveAfterDays)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yml")

	original := DefaultConfig()
	original.LLM.Provider = ProviderGemini
	original.LLM.Model = "gemini-2.0-flash"
	original.LLM.Timeout = 45 * time.Second
	original.Scheduler.PoolSize = 8
	original.Alerts.WebhookURL = "https://queue.example.com/publish"

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.LLM.Provider != original.LLM.Provider {
		t.Errorf("provider: got %q, want %q", loaded.LLM.Provider, original.LLM.Provider)
	}
	if loaded.LLM.Timeout != original.LLM.Timeout {
		t.Errorf("timeout: got %v, want %v", loaded.LLM.Timeout, original.LLM.Timeout)
	}
	if loaded.Scheduler.PoolSize != 8 {
		t.Errorf("pool_size: got %d, want 8", loaded.Scheduler.PoolSize)
	}
	if loaded.Alerts.WebhookURL != original.Alerts.WebhookURL {
		t.Errorf("webhook_url: got %q, want %q", loaded.Alerts.WebhookURL, original.Alerts.WebhookURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.yml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.LLM.Provider != ProviderOpenAI {
		t.Errorf("expected default provider, got %q", cfg.LLM.Provider)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("PULSE_LLM__PROVIDER", "anthropic")
	t.Setenv("PULSE_SCHEDULER__POOL_SIZE", "12")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LLM.Provider != ProviderAnthropic {
		t.Errorf("env override failed: got %q, want %q", loaded.LLM.Provider, ProviderAnthropic)
	}
	if loaded.Scheduler.PoolSize != 12 {
		t.Errorf("pool_size override failed: got %d", loaded.Scheduler.PoolSize)
	}
}

func TestValidateValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid, got: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty provider", func(c *Config) { c.LLM.Provider = "" }, "llm.provider"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "watson" }, "llm.provider"},
		{"empty model", func(c *Config) { c.LLM.Model = "" }, "llm.model"},
		{"zero timeout", func(c *Config) { c.LLM.Timeout = 0 }, "llm.timeout"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
		{"zero pool", func(c *Config) { c.Scheduler.PoolSize = 0 }, "scheduler.pool_size"},
		{"bad cron", func(c *Config) { c.Scheduler.WeeklyCron = "every monday" }, "scheduler.weekly_cron"},
		{"threshold too high", func(c *Config) { c.Alerts.RiskThreshold = 101 }, "alerts.risk_threshold"},
		{"no topic", func(c *Config) { c.Alerts.Topic = "" }, "alerts.topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestAPIKeyEnvVar(t *testing.T) {
	tests := []struct {
		provider ProviderType
		want     string
	}{
		{ProviderOpenAI, "OPENAI_API_KEY"},
		{ProviderGemini, "GOOGLE_API_KEY"},
		{ProviderAnthropic, "ANTHROPIC_API_KEY"},
		{ProviderOllama, ""},
	}
	for _, tt := range tests {
		if got := APIKeyEnvVar(tt.provider); got != tt.want {
			t.Errorf("APIKeyEnvVar(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Location().String(); got != "America/Sao_Paulo" {
		t.Errorf("Location() = %q", got)
	}
}
