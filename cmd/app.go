package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/pulse/internal/aggregate"
	"github.com/ziadkadry99/pulse/internal/alerts"
	"github.com/ziadkadry99/pulse/internal/config"
	"github.com/ziadkadry99/pulse/internal/db"
	"github.com/ziadkadry99/pulse/internal/llm"
	"github.com/ziadkadry99/pulse/internal/logging"
	"github.com/ziadkadry99/pulse/internal/reports"
	"github.com/ziadkadry99/pulse/internal/signals"
)

// app holds the components shared by the commands. Construction fails only
// on configuration errors or an unusable database.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *db.DB
	loc    *time.Location

	client     *llm.Client
	extractor  *signals.Extractor
	signals    *signals.Store
	alerts     *alerts.Store
	dispatcher *alerts.Dispatcher
	ingestor   *signals.Ingestor
	aggregates *aggregate.Store
	aggregator *aggregate.Aggregator
	reports    *reports.Store
	generator  *reports.Generator
	archiver   *reports.Archiver
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `pulse init` to create a config file", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(ctx, llm.ProviderConfig{
		Type:              string(cfg.LLM.Provider),
		Model:             cfg.LLM.Model,
		BaseURL:           cfg.LLM.BaseURL,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	})
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		db:     database,
		loc:    cfg.Location(),
	}

	a.client = llm.NewClient(provider, llm.ClientOptions{
		Model:       cfg.LLM.Model,
		Timeout:     cfg.LLM.Timeout,
		Temperature: cfg.LLM.Temperature,
		Logger:      logger,
	})
	a.extractor = signals.NewExtractor(a.client, logger)
	a.signals = signals.NewStore(database, a.loc)

	var publisher alerts.Publisher
	if cfg.Alerts.WebhookURL != "" {
		publisher = alerts.NewWebhookPublisher(cfg.Alerts.WebhookURL)
	} else {
		logger.Warn("alerts.webhook_url is empty, risk alerts stay in the outbox")
	}
	a.alerts = alerts.NewStore(database)
	a.dispatcher = alerts.NewDispatcher(a.alerts, publisher, cfg.Alerts.Topic, logger)
	a.ingestor = signals.NewIngestor(a.extractor, a.signals, a.dispatcher, cfg.Alerts.RiskThreshold, logger)

	a.aggregates = aggregate.NewStore(database)
	a.aggregator = aggregate.New(a.signals, a.aggregates, cfg.Alerts.RiskThreshold, logger)

	a.reports = reports.NewStore(database)
	a.generator = reports.NewGenerator(a.reports, a.aggregates, a.signals, a.extractor, logger)
	a.archiver = reports.NewArchiver(a.reports, time.Duration(cfg.Reports.ArchiveAfterDays)*24*time.Hour, logger)

	logger.Debug("components ready",
		zap.String("provider", a.client.ProviderName()),
		zap.String("model", cfg.LLM.Model),
		zap.String("database", database.Path()),
		zap.String("timezone", a.loc.String()))
	return a, nil
}

func (a *app) close() {
	usage := a.client.Usage()
	a.logger.Info("model usage",
		zap.Int("calls", usage.Calls),
		zap.Int("fallbacks", usage.Fallbacks),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("estimated_cost_usd", usage.EstimatedCost))
	if err := a.db.Close(); err != nil {
		a.logger.Error("closing database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
