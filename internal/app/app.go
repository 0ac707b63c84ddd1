// Package app provides application lifecycle management for the postpipe
// service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonesrussell/postpipe/internal/api"
	"github.com/jonesrussell/postpipe/internal/bus"
	"github.com/jonesrussell/postpipe/internal/config"
	"github.com/jonesrussell/postpipe/internal/executor"
	"github.com/jonesrussell/postpipe/internal/logger"
	"github.com/jonesrussell/postpipe/internal/metrics"
	"github.com/jonesrussell/postpipe/internal/pipeline"
	"github.com/jonesrussell/postpipe/internal/provider"
	"github.com/jonesrussell/postpipe/internal/queue"
	"github.com/jonesrussell/postpipe/internal/scheduler"
	"github.com/jonesrussell/postpipe/internal/store"
)

const (
	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	credentialCheckTimeout = 10 * time.Second
)

// App holds the service and all its dependencies.
type App struct {
	config     *config.Config
	logger     logger.Logger
	pipeline   *pipeline.Pipeline
	httpServer *http.Server
	closers    []func() error
	version    string
}

// Options configures App construction.
type Options struct {
	ConfigPath string
	Version    string
}

// New initializes all dependencies: config, logger, Postgres store, Redis
// bus, provider registry, executor, checker and the HTTP API.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "postpipe"),
		logger.String("version", opts.Version),
	)

	a := &App{config: cfg, logger: appLogger, version: opts.Version}

	db, err := store.NewPostgresConnection(store.PostgresConfig{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
		SSLMode:  cfg.Postgres.SSLMode,
	})
	if err != nil {
		return nil, a.failInit(fmt.Errorf("connect to Postgres: %w", err))
	}
	a.closers = append(a.closers, db.Close)
	contentStore := store.NewPostgresStore(db)

	redisClient, err := bus.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, a.failInit(err)
	}
	a.closers = append(a.closers, redisClient.Close)

	registry, err := provider.NewRegistry(cfg.Providers, appLogger)
	if err != nil {
		return nil, a.failInit(fmt.Errorf("build provider registry: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), credentialCheckTimeout)
	registry.ValidateAll(ctx, appLogger)
	cancel()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	messageBus := bus.New(redisClient, appLogger)
	queueManager := queue.NewManager(contentStore, appLogger)
	exec := executor.New(contentStore, registry, messageBus, m, executor.Config{
		MaxRetries: cfg.Pipeline.MaxRetries,
	}, appLogger)
	checker := scheduler.NewChecker(queueManager, messageBus, m,
		cfg.Pipeline.CheckInterval, cfg.Pipeline.IsEnabled(), appLogger)

	a.pipeline = pipeline.New(queueManager, exec, checker, messageBus, contentStore, appLogger)

	handlers := api.NewHandlers(a.pipeline, appLogger, opts.Version)
	router := api.NewRouter(handlers, promRegistry, appLogger, cfg.Debug)
	a.httpServer = api.NewServer(cfg.Server.Address, router,
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	return a, nil
}

func (a *App) failInit(err error) error {
	_ = a.Close()
	return err
}

// Run starts the pipeline and HTTP server, then blocks until a shutdown
// signal or a server error.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.pipeline.Start(runCtx)

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening",
			logger.String("address", a.config.Server.Address))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		a.logger.Info("shutting down gracefully", logger.String("signal", sig.String()))
	case err := <-serverErr:
		a.logger.Error("http server error", logger.Error(err))
		runErr = err
	case <-ctx.Done():
	}

	cancel()
	a.pipeline.Stop()
	a.shutdownHTTPServer()

	a.logger.Info("service stopped")
	return runErr
}

func (a *App) shutdownHTTPServer() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", logger.Error(err))
	}
}

// Close releases all resources.
func (a *App) Close() error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger.
func (a *App) Logger() logger.Logger {
	return a.logger
}
