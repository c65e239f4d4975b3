package config

import "time"

// ProviderType identifies the generative-model backend. Exactly one is used per process.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderGemini    ProviderType = "gemini"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOllama    ProviderType = "ollama"
)

// Config is the top-level pulse configuration, corresponding to pulse.yml.
type Config struct {
	LLM       LLMConfig       `yaml:"llm" koanf:"llm"`
	Database  DatabaseConfig  `yaml:"database" koanf:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler" koanf:"scheduler"`
	Reports   ReportsConfig   `yaml:"reports" koanf:"reports"`
	Alerts    AlertsConfig    `yaml:"alerts" koanf:"alerts"`
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Log       LogConfig       `yaml:"log" koanf:"log"`
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	Provider          ProviderType  `yaml:"provider" koanf:"provider"`
	Model             string        `yaml:"model" koanf:"model"`
	BaseURL           string        `yaml:"base_url,omitempty" koanf:"base_url"`
	Timeout           time.Duration `yaml:"timeout" koanf:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute" koanf:"requests_per_minute"`
	Temperature       float64       `yaml:"temperature" koanf:"temperature"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path" koanf:"path"`
}

// SchedulerConfig holds the calendar triggers and fan-out width.
type SchedulerConfig struct {
	Timezone    string `yaml:"timezone" koanf:"timezone"`
	PoolSize    int    `yaml:"pool_size" koanf:"pool_size"`
	DailyCron   string `yaml:"daily_cron" koanf:"daily_cron"`
	WeeklyCron  string `yaml:"weekly_cron" koanf:"weekly_cron"`
	MonthlyCron string `yaml:"monthly_cron" koanf:"monthly_cron"`
	ArchiveCron string `yaml:"archive_cron" koanf:"archive_cron"`
}

// ReportsConfig sizes the asynchronous report queue.
type ReportsConfig struct {
	Workers          int `yaml:"workers" koanf:"workers"`
	QueueSize        int `yaml:"queue_size" koanf:"queue_size"`
	ArchiveAfterDays int `yaml:"archive_after_days" koanf:"archive_after_days"`
}

// AlertsConfig controls risk-alert publication.
type AlertsConfig struct {
	RiskThreshold int    `yaml:"risk_threshold" koanf:"risk_threshold"`
	Topic         string `yaml:"topic" koanf:"topic"`
	WebhookURL    string `yaml:"webhook_url" koanf:"webhook_url"`
}

// ServerConfig holds HTTP settings for `pulse serve`.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}
