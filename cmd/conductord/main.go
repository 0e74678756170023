// Command conductord runs the reference deployment of the orchestrator: a
// Redis-backed key-value store, a session cache gated on the store's health,
// a janitor worker, and the HTTP status surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/cmatc13/conductor/internal/api"
	"github.com/cmatc13/conductor/internal/kvstore"
	"github.com/cmatc13/conductor/pkg/config"
	"github.com/cmatc13/conductor/pkg/logging"
	"github.com/cmatc13/conductor/pkg/metrics"
	"github.com/cmatc13/conductor/pkg/service"
)

func main() {
	var (
		configFile string
		logLevel   string
	)
	pflag.StringVar(&configFile, "config", "", "path to config file")
	pflag.StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	pflag.Parse()

	opts := config.DefaultLoadOptions()
	opts.ConfigFile = configFile

	cfg, err := config.LoadWithOptions(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger := logging.New(logging.Config{
		Level:       logging.LogLevel(cfg.Log.Level),
		Output:      os.Stdout,
		Component:   "conductord",
		Environment: cfg.Log.Environment,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	m := metrics.New(metrics.Config{Namespace: cfg.Metrics.Namespace})

	orch := service.New(service.Options{
		GracePeriod:          cfg.Orchestrator.GracePeriod,
		StartTimeout:         cfg.Orchestrator.StartTimeout,
		RestartPause:         cfg.Orchestrator.RestartPause,
		DefaultCheckInterval: cfg.Orchestrator.HealthCheckInterval,
	}, logger, m)

	store := kvstore.NewStore(cfg.Redis)
	sessions := newSessionCache(store)
	janitor := newJanitor(store, logger)
	server := api.NewServer(cfg, orch, logger, m)

	registrations := []service.Registration{
		{
			Name:          "kvstore",
			Priority:      90,
			Starter:       store,
			Stopper:       store,
			HealthChecker: store,
		},
		{
			Name:          "sessions",
			Priority:      80,
			Starter:       sessions,
			Stopper:       sessions,
			HealthChecker: sessions,
			Dependencies: []service.Dependency{
				{Name: "kvstore", Kind: service.DependencyRequired, HealthCheckRequired: true},
			},
		},
		{
			Name:    "janitor",
			Starter: janitor,
			Stopper: janitor,
			Dependencies: []service.Dependency{
				{Name: "kvstore", Kind: service.DependencySoft},
			},
		},
		{
			Name:          "api",
			Priority:      10,
			Starter:       service.StartFunc(func(ctx context.Context, _ service.Config) error { return server.Start(ctx) }),
			Stopper:       server,
			HealthChecker: server,
			Dependencies: []service.Dependency{
				{Name: "sessions", Kind: service.DependencyOptional},
			},
		},
	}
	for _, reg := range registrations {
		if err := orch.Register(reg); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.Name, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.InitializeAll(ctx); err != nil {
		// Stop whatever came up before the failure.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if shutdownErr := orch.ShutdownAll(shutdownCtx); shutdownErr != nil {
			logger.Error("shutdown after failed startup reported errors", "error", shutdownErr)
		}
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("conductord is running", "port", cfg.API.Port)
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return orch.ShutdownAll(shutdownCtx)
}

// sessionCache stores short-lived session tokens in the key-value store. It
// exists to exercise health-gated required dependencies.
type sessionCache struct {
	store *kvstore.Store
}

func newSessionCache(store *kvstore.Store) *sessionCache {
	return &sessionCache{store: store}
}

func (c *sessionCache) Start(ctx context.Context, _ service.Config) error {
	// Write-and-read probe against the backing store.
	if err := c.store.Set(ctx, "sessions:probe", "ok", time.Minute); err != nil {
		return fmt.Errorf("session cache probe write failed: %w", err)
	}
	if _, err := c.store.Get(ctx, "sessions:probe"); err != nil {
		return fmt.Errorf("session cache probe read failed: %w", err)
	}
	return nil
}

func (c *sessionCache) Stop(ctx context.Context) error { return nil }

func (c *sessionCache) HealthCheck(ctx context.Context) error {
	return c.store.HealthCheck(ctx)
}

// janitor periodically writes a heartbeat so operators can tell background
// maintenance is alive. Its dependency on the store is soft: it starts even
// when the store is down and retries on the next tick.
type janitor struct {
	store  *kvstore.Store
	logger *logging.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func newJanitor(store *kvstore.Store, logger *logging.Logger) *janitor {
	return &janitor{store: store, logger: logger}
}

func (j *janitor) Start(_ context.Context, _ service.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := j.store.Heartbeat(ctx); err != nil {
					j.logger.Warn("janitor heartbeat failed", "error", err)
				}
			}
		}
	}()
	return nil
}

func (j *janitor) Stop(ctx context.Context) error {
	if j.cancel == nil {
		return nil
	}
	j.cancel()
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
