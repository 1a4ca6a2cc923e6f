package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/news-comb/app/api"
	"github.com/lysyi3m/news-comb/app/cfg"
	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/dedup"
	"github.com/lysyi3m/news-comb/app/fetcher"
	"github.com/lysyi3m/news-comb/app/news"
	"github.com/lysyi3m/news-comb/app/source"
	"github.com/lysyi3m/news-comb/app/tasks"
)

func main() {
	loaded, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if loaded == nil {
		// Help was shown
		return
	}

	appCfg := cfg.Get()
	slog.SetDefault(cfg.NewLogger(os.Stdout, appCfg.LogLevel, appCfg.Debug))

	if err := run(); err != nil {
		slog.Error("News Comb stopped with error", "mode", appCfg.Mode, "error", err)
		os.Exit(1)
	}
}

func run() error {
	appCfg := cfg.Get()
	slog.Info("Starting News Comb", "version", appCfg.Version, "mode", appCfg.Mode, "env", appCfg.Env)

	// Load source configurations
	descriptors, err := source.NewLoader(appCfg.SourcesDir).Run()
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}

	registry, err := source.NewRegistry(descriptors, source.BackoffPolicy{
		Threshold:  appCfg.QuarantineThreshold,
		Factor:     appCfg.BackoffFactor,
		MaxCadence: appCfg.MaxCadence,
	})
	if err != nil {
		return fmt.Errorf("failed to build source registry: %w", err)
	}
	slog.Info("Loaded sources", "count", registry.Count(), "dir", appCfg.SourcesDir)

	// Database connection
	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// Only the ingest modes migrate; the API process expects an already
	// migrated store and never writes the schema.
	if appCfg.Mode == cfg.ModeAPI {
		if err := database.CheckSchema(context.Background(), db); err != nil {
			return fmt.Errorf("database not ready, start --mode schedule or --mode once first: %w", err)
		}
		slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", database.SchemaVersion)
	} else {
		status, err := database.Migrate(db)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", status.Version)
	}

	articleRepo := database.NewArticleRepository(db)
	bookkeepingRepo := database.NewBookkeepingRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch appCfg.Mode {
	case cfg.ModeAPI:
		return serveAPI(ctx, appCfg, registry, articleRepo, bookkeepingRepo)
	case cfg.ModeOnce, cfg.ModeSchedule:
		scheduler := newScheduler(appCfg, registry, articleRepo, bookkeepingRepo)
		if err := scheduler.Restore(ctx); err != nil {
			return err
		}
		if appCfg.Mode == cfg.ModeOnce {
			return runOnce(ctx, scheduler)
		}
		return runSchedule(ctx, scheduler)
	default:
		return fmt.Errorf("unknown mode %q", appCfg.Mode)
	}
}

func newScheduler(appCfg *cfg.Cfg, registry *source.Registry, articleRepo *database.ArticleRepository,
	bookkeepingRepo *database.BookkeepingRepository) *tasks.Scheduler {
	sourceFetcher := fetcher.New(nil, fetcher.Options{
		UserAgent:      fmt.Sprintf("%s (%s)", appCfg.UserAgent, appCfg.Version),
		DefaultTimeout: appCfg.FetchTimeout,
		MaxAttempts:    appCfg.FetchAttempts,
		MaxBodySize:    appCfg.MaxBodySize,
		HostInterval:   appCfg.HostInterval,
	})

	return tasks.NewScheduler(
		registry,
		sourceFetcher,
		news.NewParser(),
		news.NewFilterer(),
		dedup.NewResolver(articleRepo, appCfg.StoreTimeout),
		bookkeepingRepo,
		tasks.Options{
			WorkerCount:  appCfg.WorkerCount,
			TickInterval: appCfg.TickInterval,
			StoreTimeout: appCfg.StoreTimeout,
			WindowSize:   appCfg.WindowSize,
		},
	)
}

func runOnce(ctx context.Context, scheduler *tasks.Scheduler) error {
	outcomes := scheduler.Tick(ctx, time.Now())

	for _, outcome := range outcomes {
		slog.Info("Source ingested",
			"source", outcome.SourceID,
			"status", outcome.Status,
			"new", outcome.New,
			"updated", outcome.Updated,
			"duplicate", outcome.Duplicate,
			"filtered", outcome.Filtered,
			"failed", outcome.Failed,
			"not_modified", outcome.NotModified,
			"duration", outcome.Duration,
			"error", outcome.ErrorString())
	}

	stats := scheduler.Window().Stats()
	slog.Info("Ingest cycle completed",
		"dispatched", stats.Outcomes,
		"success", stats.Success,
		"partial", stats.Partial,
		"failed", stats.Failed,
		"new", stats.New,
		"updated", stats.Updated)

	return ctx.Err()
}

func runSchedule(ctx context.Context, scheduler *tasks.Scheduler) error {
	scheduler.Start()
	slog.Info("Scheduler started, press Ctrl+C to shutdown gracefully")

	<-ctx.Done()

	slog.Info("Shutting down scheduler gracefully")
	scheduler.Stop()
	slog.Info("Scheduler stopped")
	return nil
}

func serveAPI(ctx context.Context, appCfg *cfg.Cfg, registry *source.Registry,
	articleRepo *database.ArticleRepository, bookkeepingRepo *database.BookkeepingRepository) error {
	addr := net.JoinHostPort(appCfg.Host, appCfg.Port)

	baseURL := appCfg.BaseUrl
	if baseURL == "" {
		baseURL = "http://" + addr
	}

	handler := api.NewHandler(articleRepo, bookkeepingRepo, registry, baseURL, appCfg.Version, appCfg.StoreTimeout)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      api.NewServer(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", addr, "base_url", baseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case serveErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return serveErr
}
