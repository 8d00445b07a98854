package main

import (
	"fmt"
	"log/slog"

	"github.com/cuongbtq/application-tracker/internal/cache"
	"github.com/cuongbtq/application-tracker/internal/client"
	"github.com/cuongbtq/application-tracker/internal/config"
	"github.com/cuongbtq/application-tracker/internal/ingest"
	"github.com/cuongbtq/application-tracker/internal/tracker"
	"github.com/cuongbtq/application-tracker/shared/logger"
)

// app holds the wired client side: API client, cache store, creation
// orchestrator and the query service on top of them.
type app struct {
	cfg     *config.Config
	logger  *logger.Logger
	api     *client.Client
	store   *cache.Store
	service *tracker.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateClientConfig(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       orDefault(cfg.Logging.Output, "stderr"),
		EnableSource: cfg.Logging.EnableSource,
		TimeFormat:   cfg.Logging.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	api, err := client.New(client.Config{
		BaseURL:  cfg.Client.BaseURL(),
		Timeout:  cfg.Client.Timeout,
		PageSize: cfg.Client.PageSize,
		Tokens:   client.StaticToken(cfg.Client.Token),
		Logger:   log.Logger,
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	store := cache.NewStore(cache.Config{
		Logger:         log.Logger,
		RefetchWorkers: cfg.Cache.RefetchWorkers,
		QueueSize:      cfg.Cache.QueueSize,
		RefetchTimeout: cfg.Cache.RefetchTimeout,
	})

	orchestrator := ingest.New(ingest.Config{
		Logger: log.Logger,
		Opener: api,
		Cache:  store,
		Observer: func(t ingest.Transition) {
			log.Debug("Ingestion state changed",
				slog.String("run_id", t.RunID),
				slog.String("from", t.From.String()),
				slog.String("to", t.To.String()),
				slog.Int("frame", t.Frame),
			)
		},
	})

	service := tracker.NewService(tracker.Config{
		Logger:  log.Logger,
		API:     api,
		Store:   store,
		Creator: orchestrator,
	})

	log.Debug("Tracker client ready",
		slog.String("mode", cfg.Client.Mode),
		slog.String("base_url", api.BaseURL()),
	)

	return &app{
		cfg:     cfg,
		logger:  log,
		api:     api,
		store:   store,
		service: service,
	}, nil
}

// Close stops the refetch workers and releases the log output.
func (a *app) Close() {
	a.store.Close()
	a.logger.Close()
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
