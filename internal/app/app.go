// Package app wires configuration into the extraction pipeline and record store.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/common"
	"github.com/joseph-ayodele/kpi-extractor/internal/export"
	"github.com/joseph-ayodele/kpi-extractor/internal/llm"
	"github.com/joseph-ayodele/kpi-extractor/internal/llm/claude"
	"github.com/joseph-ayodele/kpi-extractor/internal/llm/gemini"
	"github.com/joseph-ayodele/kpi-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/kpi-extractor/internal/pipeline"
	"github.com/joseph-ayodele/kpi-extractor/internal/repository"
	"github.com/joseph-ayodele/kpi-extractor/internal/staging"
)

// App holds the long-lived components shared by the daemon and the batch CLI.
type App struct {
	Catalog  *constants.Catalog
	Stager   *staging.Stager
	Pipeline *pipeline.Pipeline
	Store    repository.RecordStore

	closers []func() error
}

// New builds every component from cfg. Call Close when done.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}

	cat, err := constants.LoadCatalog(cfg.FieldsPath)
	if err != nil {
		return nil, fmt.Errorf("load field catalog: %w", err)
	}
	a.Catalog = cat

	stager, err := staging.NewStager(staging.Config{
		Dir:         cfg.Staging.Dir,
		MaxBytes:    cfg.Staging.MaxBytes,
		ValidatePDF: cfg.Staging.ValidatePDF,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}
	a.Stager = stager

	extractor, closeExtractor, err := NewExtractor(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	if closeExtractor != nil {
		a.closers = append(a.closers, closeExtractor)
	}

	coercer, err := llm.NewCoercer(cat, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("coercer: %w", err)
	}
	artifacts := export.NewArtifacts(cfg.Export.Path, export.NewService(cat, logger), logger)
	a.Pipeline = pipeline.NewPipeline(logger, pipeline.Config{ExtractTimeout: cfg.LLM.Timeout}, stager, extractor, coercer, artifacts)

	store, err := repository.Open(ctx, cfg.Store, cat, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("record store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	logger.Info("app.ready",
		"provider", extractor.Provider(),
		"store", cfg.Store.Backend,
		"fields", len(cat.Fields),
		"prompt_version", cat.Version,
	)
	return a, nil
}

// NewExtractor builds the configured provider client. The returned close
// func may be nil.
func NewExtractor(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.DocumentExtractor, func() error, error) {
	switch cfg.Provider {
	case common.ProviderGemini, "":
		c, err := gemini.NewClient(ctx, gemini.Config{
			ProjectID:       cfg.ProjectID,
			Region:          cfg.Region,
			Model:           cfg.GeminiModel,
			CredentialsFile: cfg.CredentialsFile,
			Temperature:     cfg.Temperature,
			StagingBucket:   cfg.StagingBucket,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini client: %w", err)
		}
		return c, c.Close, nil
	case common.ProviderAnthropic:
		return claude.NewClient(claude.Config{
			APIKey:      cfg.AnthropicAPIKey,
			Model:       cfg.AnthropicModel,
			Temperature: cfg.Temperature,
		}, logger), nil, nil
	case common.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger), nil, nil
	default:
		return nil, nil, common.NewAppError("CONFIG_ERROR", "unknown LLM provider "+cfg.Provider, common.ErrInvalidInput)
	}
}

// Close releases the store and provider clients, returning the first error.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
