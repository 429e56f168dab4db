// Package app wires configuration into the services the binaries run.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
	"github.com/joseph-ayodele/form-digitizer/internal/export"
	"github.com/joseph-ayodele/form-digitizer/internal/llm"
	"github.com/joseph-ayodele/form-digitizer/internal/llm/gemini"
	"github.com/joseph-ayodele/form-digitizer/internal/llm/offline"
	"github.com/joseph-ayodele/form-digitizer/internal/llm/openai"
	"github.com/joseph-ayodele/form-digitizer/internal/parser"
	"github.com/joseph-ayodele/form-digitizer/internal/pipeline"
	"github.com/joseph-ayodele/form-digitizer/internal/records"
	"github.com/joseph-ayodele/form-digitizer/internal/repository"
	"github.com/joseph-ayodele/form-digitizer/internal/templates"
)

// App holds the long-lived services shared by the binaries. Store and
// Records are nil when the app was built without a database.
type App struct {
	Config    *common.Config
	Logger    *slog.Logger
	Registry  *templates.Registry
	Processor *pipeline.Processor
	Exporter  *export.Service
	Store     repository.Store
	Records   *records.Service
}

// New builds the extraction side of the app. withDB also opens the record
// store and applies migrations.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, withDB bool) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(withDB); err != nil {
		return nil, err
	}

	reg, err := templates.Open(cfg.Templates.Path)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	logger.Info("templates.loaded", "count", len(reg.Names()), "path", cfg.Templates.Path)

	analyzer, err := NewAnalyzer(cfg.LLM, reg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  reg,
		Processor: NewProcessor(cfg, reg, analyzer, logger),
		Exporter:  export.NewService(logger),
	}

	if withDB {
		store, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
		if err != nil {
			return nil, err
		}
		a.Store = store
		a.Records = records.NewService(store, reg, logger)
	}
	return a, nil
}

// Close releases the record store, if any.
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}

// NewAnalyzer returns the configured provider behind the retrying, rate
// limited adapter.
func NewAnalyzer(cfg common.LLMConfig, reg *templates.Registry, logger *slog.Logger) (*llm.Adapter, error) {
	var provider llm.DocumentAnalyzer
	switch cfg.Provider {
	case common.ProviderGemini:
		provider = gemini.NewClient(gemini.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger)
	case common.ProviderOpenAI:
		provider = openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger)
	case common.ProviderOffline:
		provider = offline.NewClient(reg, offline.WithLogger(logger))
	default:
		return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown LLM_PROVIDER %q", cfg.Provider), common.ErrInvalidInput)
	}
	logger.Info("llm.provider.selected", "provider", cfg.Provider, "model", cfg.Model)

	return llm.NewAdapter(cfg.Provider, provider,
		llm.WithRetries(cfg.MaxRetries, cfg.RetryBackoff),
		llm.WithRateLimit(cfg.RatePerSecond, cfg.Burst),
		llm.WithMaxImageBytes(cfg.MaxImageBytes),
		llm.WithLogger(logger),
	), nil
}

// NewProcessor builds the extraction pipeline for analyzer.
func NewProcessor(cfg *common.Config, reg *templates.Registry, analyzer llm.DocumentAnalyzer, logger *slog.Logger) *pipeline.Processor {
	opts := []pipeline.Option{
		pipeline.WithParser(parser.New(logger, parser.WithDescriptorPatterns(cfg.Pipeline.DescriptorPatterns))),
	}
	if cfg.LLM.Timeout > 0 {
		// the budget covers every retry the adapter makes
		opts = append(opts, pipeline.WithProviderTimeout(cfg.LLM.Timeout*time.Duration(cfg.LLM.MaxRetries+1)))
	}
	return pipeline.NewProcessor(logger, reg, analyzer, opts...)
}
