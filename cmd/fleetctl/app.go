package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hochfrequenz/botfleet/internal/campaign"
	"github.com/hochfrequenz/botfleet/internal/config"
	"github.com/hochfrequenz/botfleet/internal/domain"
	"github.com/hochfrequenz/botfleet/internal/events"
	"github.com/hochfrequenz/botfleet/internal/executor"
	"github.com/hochfrequenz/botfleet/internal/fleet"
	"github.com/hochfrequenz/botfleet/internal/fleetstore"
	"github.com/hochfrequenz/botfleet/internal/logging"
)

// app is the wired fleet: store, registry, event hub and orchestrator
type app struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	store    *fleetstore.Store
	registry *fleet.Registry
	hub      *events.Hub
	orch     *campaign.Orchestrator
}

func loadConfig(path string) (*config.Config, error) {
	return config.LoadWithLocalFallback(path)
}

// openApp opens the store, seeds it when empty and loads the registry. A
// failed load leaves the registry empty instead of aborting.
func openApp(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.General.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	store, err := fleetstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if seeded, err := store.SeedIfEmpty(domain.StarterFleet()); err != nil {
		logger.Warnw("seeding starter fleet", "error", err)
	} else if seeded {
		logger.Infow("seeded starter fleet", "bots", len(domain.StarterFleet()))
	}

	registry := fleet.NewRegistry(store, logger)
	if err := registry.LoadFromStore(); err != nil {
		logger.Warnw("starting with an empty fleet", "error", err)
	}

	hub := events.NewHub(cfg.Dispatch.ProgressBuffer)
	exec := executor.NewSimulated(executor.SimulatedConfig{
		Steps:     cfg.Executor.Steps,
		StepDelay: cfg.Executor.StepDelay(),
	})
	orch := campaign.New(registry, exec, hub, campaign.Config{
		PoolSize:    cfg.Dispatch.PoolSize,
		Granularity: cfg.Dispatch.ProgressGranularity,
	}, campaign.WithRecorder(store), campaign.WithLogger(logger))

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
		hub:      hub,
		orch:     orch,
	}, nil
}

// Close stops any campaign, saves the fleet and releases the store
func (a *app) Close() error {
	a.orch.Close()
	err := a.registry.Persist()
	if err != nil {
		a.logger.Warnw("saving fleet on shutdown", "error", err)
	}
	a.hub.Close()
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = a.logger.Sync()
	return err
}
