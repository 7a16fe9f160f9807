package main

import (
	"context"
	"fmt"

	"github.com/recountlabs/recount/internal/ai"
	"github.com/recountlabs/recount/internal/config"
	"github.com/recountlabs/recount/internal/engine"
	"github.com/recountlabs/recount/internal/idempotency"
	"github.com/recountlabs/recount/internal/service"
	"github.com/recountlabs/recount/internal/storage"
)

// app bundles the wired-up application for a command invocation.
type app struct {
	cfg     *config.Config
	storage *storage.SQLiteStorage
	engine  *engine.Engine
	guard   *idempotency.Guard
}

// openApp loads configuration and wires storage, engine and guard.
// Callers must Close when done.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	explainer, err := buildExplainer(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		storage: store,
		engine:  engine.New(store, explainer),
		guard:   idempotency.NewGuard(store, cfg.Idempotency.TTL),
	}, nil
}

func (a *app) Close() error {
	return a.storage.Close()
}

// buildExplainer wires the Gemini enricher when AI is enabled; a nil
// explainer means every explanation comes from the heuristic reason.
func buildExplainer(cfg *config.Config) (engine.Explainer, error) {
	if !cfg.AI.Enabled {
		return nil, nil
	}

	client, err := ai.NewGeminiClient(ai.Config{
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create explanation client: %w", err)
	}

	return ai.NewService(client, service.RetryOptions{
		MaxAttempts:  cfg.AI.MaxAttempts,
		InitialDelay: cfg.AI.InitialDelay,
		Timeout:      cfg.AI.Timeout,
	}), nil
}
