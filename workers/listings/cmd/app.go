package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"findtrades/shared/config"
	"findtrades/shared/database"
	"findtrades/shared/observability"
	"findtrades/workers/listings/internal/cache"
	"findtrades/workers/listings/internal/engine"
	"findtrades/workers/listings/internal/store"
	"findtrades/workers/listings/internal/trade"
)

// application holds the wired dependencies shared by every command.
type application struct {
	cfg       *config.Config
	obs       observability.Provider
	db        *database.DB
	cache     *cache.Cache
	engine    *engine.Engine
	logger    observability.Logger
	metrics   observability.Metrics
	startTime time.Time
}

// loadConfiguration loads and validates the application configuration
func loadConfiguration() (*config.Config, error) {
	provider := config.GetProvider()
	if configDir != "" {
		provider = config.NewProvider(configDir)
	}
	if err := provider.Load(); err != nil {
		return nil, err
	}
	return provider.Get()
}

// newApplication connects to the store and builds the engine.
func newApplication(ctx context.Context, cfg *config.Config, logOutput io.Writer) (*application, error) {
	obs := observability.NewProvider(&observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		LogOutput:   logOutput,
		AdditionalFields: observability.Fields{
			"version": cfg.Version,
		},
	})
	logger := obs.Logger("main")
	metrics := obs.Metrics("main")

	logger.Info(ctx, "Starting application", observability.Fields{
		"service":     cfg.ServiceName,
		"version":     cfg.Version,
		"environment": cfg.Environment,
	})

	db, err := database.Open(ctx, cfg.Database, obs)
	if err != nil {
		metrics.RecordError("init", "database")
		return nil, err
	}

	stores := store.New(db)
	refCache := cache.New(obs, cache.WithSweepInterval(cfg.Listings.CacheSweepInterval))

	eng, err := engine.New(engine.Deps{
		Providers:     stores.Providers,
		Trades:        stores.Trades,
		Associations:  stores.Associations,
		Subscriptions: stores.Subscriptions,
		Cache:         refCache,
		Observability: obs,
		Sniffer:       trade.NewVocabularySniffer(),
	}, engine.OptionsFromConfig(cfg.Listings))
	if err != nil {
		db.Close()
		metrics.RecordError("init", "engine")
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	metrics.RecordSuccess("init")
	return &application{
		cfg:       cfg,
		obs:       obs,
		db:        db,
		cache:     refCache,
		engine:    eng,
		logger:    logger,
		metrics:   metrics,
		startTime: time.Now(),
	}, nil
}

// Close stops the cache sweeper and releases the store connection.
func (a *application) Close() error {
	a.cache.Stop()
	dbErr := a.db.Close()
	if err := a.obs.Close(); err != nil {
		return err
	}
	return dbErr
}
