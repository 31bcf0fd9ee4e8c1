// Package main is the entrypoint for the subharvest API server.
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

	"github.com/robfig/cron/v3"

	"github.com/kiranshivaraju/subharvest/internal/api"
	"github.com/kiranshivaraju/subharvest/internal/api/handler"
	mw "github.com/kiranshivaraju/subharvest/internal/api/middleware"
	"github.com/kiranshivaraju/subharvest/internal/api/response"
	"github.com/kiranshivaraju/subharvest/internal/cache"
	"github.com/kiranshivaraju/subharvest/internal/config"
	"github.com/kiranshivaraju/subharvest/internal/jobs"
	"github.com/kiranshivaraju/subharvest/internal/reddit"
	"github.com/kiranshivaraju/subharvest/internal/scrape"
	"github.com/kiranshivaraju/subharvest/internal/search"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"mirrors", cfg.Search.Mirrors,
		"workers", cfg.Jobs.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Optional Redis cache for rate limiting
	var limiterCache cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		limiterCache = redisCache
		slog.Info("redis connected, rate limiting enabled")
	}

	// 3. Upstream clients
	searchClient := search.NewHTTPClient(
		cfg.Search.Mirrors,
		cfg.Search.MaxAttempts,
		cfg.Search.RetryBaseDelay,
		cfg.Search.RetryMaxDelay,
		cfg.Search.Timeout,
	)
	redditClient := reddit.NewHTTPClient(cfg.Reddit.BaseURL, cfg.Reddit.UserAgent, cfg.Reddit.Timeout)

	// 4. Job machinery
	registry := jobs.NewRegistry(cfg.Jobs.Retention)
	pool := jobs.NewPool(ctx, cfg.Jobs.Workers, cfg.Jobs.QueueSize)

	engine := scrape.NewEngine(searchClient, scrape.EngineConfig{
		PageSize:        cfg.Search.PageSize,
		ChunkAttempts:   cfg.Search.ChunkAttempts,
		EmptyChunkPause: cfg.Search.EmptyChunkPause,
		PacePerSecond:   cfg.Search.PacePerSecond,
	})
	enricher := scrape.NewEnricher(redditClient)
	runner := scrape.NewRunner(engine, enricher, registry, cfg.Jobs.OutputDir)
	svc := scrape.NewService(registry, pool, runner)

	// 5. Scheduled retention sweep
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Jobs.SweepSchedule, func() {
		if n := registry.Sweep(time.Now()); n > 0 {
			slog.Info("retention sweep", "removed", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule retention sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// 6. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(limiterCache, cfg.Redis.RequestsPerMin),

		HealthHandler:    healthHandler(limiterCache, cfg.Jobs.OutputDir),
		CreateJobHandler: handler.NewCreateJobHandler(svc, cfg.Jobs.MaxResults),
		JobStatusHandler: handler.NewJobStatusHandler(registry),
		DownloadHandler:  handler.NewDownloadHandler(registry),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	pool.Wait()
	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks cache connectivity (when configured) and that the
// artifact directory is still writable.
func healthHandler(c cache.Cache, outputDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"cache":      "ok",
			"output_dir": "ok",
		}

		if c == nil {
			checks["cache"] = "disabled"
		} else if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if info, err := os.Stat(outputDir); err != nil || !info.IsDir() {
			checks["output_dir"] = "degraded"
		}

		if checks["cache"] == "degraded" || checks["output_dir"] == "degraded" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
