package main

import (
	"context"
	"fmt"
	"log/slog"

	"home-voice/config"
	"home-voice/internal/infra/homeassistant"
	"home-voice/internal/infra/simplefn"
	"home-voice/internal/infra/store"
)

// app holds the components every subcommand needs.
type app struct {
	db        *store.DB
	registry  *homeassistant.Registry
	client    *homeassistant.Client
	functions *simplefn.Registry
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if path := cfg.HomeAssistant.SettingsFile; path != "" {
		settings, err := config.LoadHomeAssistantSettings(path)
		if err != nil {
			logger.Warn("using default entity filters", "path", path, "error", err)
		}
		settings.Apply(&cfg.HomeAssistant)
	}

	db, err := store.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating storage: %w", err)
	}

	exec, err := homeassistant.NewExecutor(cfg.HomeAssistant, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating executor: %w", err)
	}
	registry := homeassistant.NewRegistry(exec, homeassistant.PolicyFromConfig(cfg.HomeAssistant), logger)

	functions := simplefn.New(cfg.SimpleFunctions, logger,
		simplefn.WithLocation(registry),
		simplefn.WithEventStore(store.NewEventRepository(db)),
		simplefn.WithAutomationStore(store.NewAutomationRepository(db)),
	)

	client := homeassistant.NewClient(exec, registry, functions, logger)
	if err := client.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing home assistant: %w", err)
	}

	return &app{
		db:        db,
		registry:  registry,
		client:    client,
		functions: functions,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
