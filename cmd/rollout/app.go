package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/rollout/pkg/api"
	"github.com/dmitrymomot/rollout/pkg/config"
	"github.com/dmitrymomot/rollout/pkg/eventlog"
	"github.com/dmitrymomot/rollout/pkg/legacy"
	"github.com/dmitrymomot/rollout/pkg/logger"
	"github.com/dmitrymomot/rollout/pkg/metrics"
	"github.com/dmitrymomot/rollout/pkg/redis"
	"github.com/dmitrymomot/rollout/pkg/rollout"
	"github.com/dmitrymomot/rollout/pkg/storage"
)

// closableStore is a storage.Store that owns a connection or file handle.
type closableStore interface {
	storage.Store
	Close() error
}

// app holds everything a command needs, wired from configuration.
type app struct {
	cfg      config.Rollout
	log      *slog.Logger
	store    closableStore
	rollout  *rollout.Rollout
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	checks   []api.Check
	printer  *printer
}

func newApp(ctx context.Context, cfg config.Rollout, out io.Writer, output string) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := newLogger(cfg)

	store, checks, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	events := eventlog.NewLogger(store,
		eventlog.WithHistoryLength(cfg.HistoryLength),
		eventlog.WithLogger(log.With(logger.Component("eventlog"))),
	)
	opts := []rollout.Option{
		rollout.WithLogger(log),
		rollout.WithEventLog(events),
		rollout.WithObserver(m),
		rollout.WithEvaluationObserver(m),
	}
	if cfg.Migrate {
		opts = append(opts, rollout.WithLegacy(legacy.NewReader(store)))
	}

	r := rollout.New(store, opts...)
	checks = append(checks, func(ctx context.Context) error {
		_, err := r.Features(ctx)
		return err
	})

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		rollout:  r,
		metrics:  m,
		registry: registry,
		checks:   checks,
		printer:  &printer{out: out, format: output},
	}, nil
}

// Close releases the store.
func (a *app) Close() error {
	return a.store.Close()
}

func newLogger(cfg config.Rollout) *slog.Logger {
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, cfg.Service),
		logger.WithOutput(os.Stderr),
		logger.WithContextValue("request_id", chimiddleware.RequestIDKey),
	}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevelName(cfg.LogLevel))
	}
	if cfg.LogFormat != "" {
		opts = append(opts, logger.WithFormat(logger.Format(cfg.LogFormat)))
	}
	return logger.New(opts...)
}

// openStore returns the configured backend and its readiness checks.
func openStore(ctx context.Context, cfg config.Rollout, log *slog.Logger) (closableStore, []api.Check, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		log.Debug("using in-memory storage")
		return storage.NewMemoryStore(), nil, nil

	case config.StorageBolt:
		s, err := storage.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		log.Debug("using bolt storage", slog.String("path", cfg.BoltPath))
		return s, nil, nil

	case config.StorageRedis:
		var rcfg redis.Config
		if err := config.Load(&rcfg); err != nil {
			return nil, nil, err
		}
		client, err := redis.Connect(ctx, rcfg)
		if err != nil {
			return nil, nil, err
		}
		log.Debug("using redis storage")
		return redis.NewStorage(client), []api.Check{redis.Healthcheck(client)}, nil
	}
	return nil, nil, errors.Join(config.ErrInvalidConfig, fmt.Errorf("unknown storage %q", cfg.Storage))
}
