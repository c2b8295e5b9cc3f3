package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kalambet/bloodlens/internal/capability"
	"github.com/kalambet/bloodlens/internal/config"
	"github.com/kalambet/bloodlens/internal/document"
	"github.com/kalambet/bloodlens/internal/pipeline"
	"github.com/kalambet/bloodlens/internal/reasoning"
	"github.com/kalambet/bloodlens/internal/storage"
)

// app holds the long-lived collaborators built from config.
type app struct {
	cfg      config.Config
	orch     *pipeline.Orchestrator
	reasoner reasoning.Reasoner
	store    *storage.Store
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

var newWebSearch = func(cfg config.SearchConfig) capability.Capability {
	return capability.NewSearcher(capability.SearchConfig{
		SerperAPIKey:  cfg.SerperAPIKey,
		MaxResults:    cfg.MaxResults,
		MaxConcurrent: cfg.MaxConcurrent,
	})
}

// newApp wires the pipeline. The report store is opened only when storage
// is enabled and withStore is set.
func newApp(ctx context.Context, cfg config.Config, withStore bool) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry, err := capability.NewRegistry(
		capability.Document(cfg.Document.MaxChars),
		capability.Nutrition(),
		capability.Exercise(),
		newWebSearch(cfg.Search),
	)
	if err != nil {
		return nil, fmt.Errorf("building capability registry: %w", err)
	}

	reasoner, err := reasoning.New(ctx, reasoning.Config{
		Provider: cfg.Reasoning.Provider,
		Model:    cfg.Reasoning.Model,
		BaseURL:  cfg.Reasoning.BaseURL,
		APIKey:   cfg.Reasoning.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing %s reasoning: %w", cfg.Reasoning.Provider, err)
	}
	if o, ok := reasoner.(*reasoning.Ollama); ok && !o.HasModel(ctx) {
		model := cfg.Reasoning.Model
		if model == "" {
			model = reasoning.DefaultModel(cfg.Reasoning.Provider)
		}
		slog.Warn("ollama model not available; run `ollama pull` first", "model", model)
	}

	retries := cfg.Pipeline.MaxRetries
	if retries == 0 {
		retries = -1
	}

	a := &app{
		cfg:      cfg,
		reasoner: reasoner,
		orch: pipeline.New(document.NewExtractor(cfg.Document.MaxPages), registry, reasoner, pipeline.Options{
			RoleTimeout: cfg.Pipeline.RoleTimeout,
			MaxRetries:  retries,
			Concurrent:  cfg.Pipeline.Concurrent,
		}),
	}

	if withStore && cfg.Storage.Enabled {
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		a.store = store
	}
	return a, nil
}

func (a *app) Close() {
	if c, ok := a.reasoner.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("closing reasoner", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}
}
