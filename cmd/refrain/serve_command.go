package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/sydlexius/refrain/internal/api"
	"github.com/sydlexius/refrain/internal/api/middleware"
	"github.com/sydlexius/refrain/internal/cache"
	"github.com/sydlexius/refrain/internal/catalog"
	"github.com/sydlexius/refrain/internal/config"
	"github.com/sydlexius/refrain/internal/event"
	"github.com/sydlexius/refrain/internal/logging"
	"github.com/sydlexius/refrain/internal/research"
	"github.com/sydlexius/refrain/internal/version"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the research worker and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, ctx.configPath())
		},
	}
}

func serve(parent context.Context, cfg *config.Config, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}

	logManager, logger := logging.NewManager(loggingConfig(cfg))
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	lock, err := acquireInstanceLock(cfg)
	if err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting refrain",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("database", cfg.Database.Driver),
	)

	// Backing store
	p := newPool(cfg, logger)
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("closing pool", logging.Err(err))
		}
	}()
	if !p.TryInitialize(ctx) {
		logger.Warn("database not reachable at startup; will retry on first use")
	}
	p.StartKeepalive(ctx)
	defer p.StopKeepalive()
	store := catalog.NewStore(p, cfg.Database.Driver)

	// Lookup cache
	cacheStore := cache.NewStore(cfg.Cache.Root, cache.WithLogger(logger))
	if cfg.Cache.PruneInterval > 0 {
		go cacheStore.StartPruner(ctx, cfg.Cache.PruneInterval, cfg.TTLFor)
	}

	// Events
	bus := event.NewBus(logger, 256)
	catalog.NewJobLogger(store, logger).Subscribe(bus)
	go bus.Start()
	defer func() {
		bus.Stop()
		if !bus.Wait(5 * time.Second) {
			logger.Warn("event bus did not drain before shutdown")
		}
	}()

	// Sources and research
	client := newClient(cfg, logger)
	registry := buildRegistry(cfg, client, cacheStore, logger)
	if len(registry.All()) == 0 {
		logger.Warn("no sources enabled; research jobs will accept nothing")
	}
	scorer, err := newScorer(cfg)
	if err != nil {
		return err
	}
	pipeline := research.NewPipeline(registry, store, scorer, cfg.Match.RepresentativeSource, logger)
	pipeline.SetEventBus(bus)

	worker := research.NewWorker(pipeline, research.Options{
		PollTimeout: cfg.Worker.PollTimeout,
		StopTimeout: cfg.Worker.StopTimeout,
	}, logger)
	worker.SetEventBus(bus)
	// Shutdown goes through Stop so queued jobs are accounted for.
	worker.Start(context.WithoutCancel(ctx))
	defer func() {
		if err := worker.Stop(); err != nil {
			logger.Error("stopping research worker", logging.Err(err))
		}
	}()

	// Config reload: logging and rate limits apply live.
	watcher := config.NewWatcher(configPath, func(next *config.Config) {
		logManager.Reconfigure(loggingConfig(next))
		applyIntervals(client.Limiter(), next)
	}, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Warn("config watcher stopped", logging.Err(err))
		}
	}()

	router := api.NewRouter(api.RouterDeps{
		Queue:         worker,
		Catalog:       store,
		Health:        p,
		Logger:        logger,
		BasePath:      cfg.Server.BasePath,
		SubmitLimiter: middleware.NewSubmitRateLimiter(ctx, 100*time.Millisecond, 50),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// acquireInstanceLock creates the data directory if needed and takes the
// lock that allows one worker process per data directory.
func acquireInstanceLock(cfg *config.Config) (*flock.Flock, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", cfg.DataDir, err)
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring instance lock %s: %w", cfg.LockPath(), err)
	}
	if !locked {
		return nil, fmt.Errorf("another refrain server holds %s", cfg.LockPath())
	}
	return lock, nil
}
