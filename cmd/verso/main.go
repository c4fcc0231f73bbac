// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/verso-cms/verso/internal/assetgc"
	"github.com/verso-cms/verso/internal/blob"
	"github.com/verso-cms/verso/internal/cache"
	"github.com/verso-cms/verso/internal/config"
	"github.com/verso-cms/verso/internal/handler"
	"github.com/verso-cms/verso/internal/history"
	"github.com/verso-cms/verso/internal/logging"
	"github.com/verso-cms/verso/internal/publish"
	"github.com/verso-cms/verso/internal/scheduler"
	"github.com/verso-cms/verso/internal/service"
	"github.com/verso-cms/verso/internal/store"
	"github.com/verso-cms/verso/internal/webhook"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Verso - draft/publish content engine\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VERSO_DB_PATH          SQLite database path (default: ./data/verso.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VERSO_SERVER_PORT      Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VERSO_ENV              Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VERSO_BLOB_BACKEND     Blob backend: fs|memory|s3 (default: fs)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VERSO_REDIS_URL        Redis URL for the published cache (optional)\n")
	}

	flag.Parse()

	if *showVersion {
		_, _ = fmt.Printf("verso %s (commit: %s, built: %s)\n", appVersion, appGitCommit, appBuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// Upgrade logger to also persist WARN and ERROR records to the events table
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewEventLogHandler(textHandler, db))
	slog.SetDefault(logger)

	ctx := context.Background()
	queries := store.New(db)

	blobs, err := blob.NewStoreFromConfig(ctx, cfg.BlobConfig())
	if err != nil {
		return fmt.Errorf("initializing blob store: %w", err)
	}
	slog.Info("blob store ready", "backend", cfg.BlobBackend)

	appCache, err := cache.NewCache(cfg.CacheConfig())
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() { _ = appCache.Close() }()
	published := cache.NewPublishedCache(appCache, cfg.CacheConfig(), logger)

	log := history.NewLog(queries, cfg.SnapshotEvery, logger)
	collector := assetgc.New(queries, blobs, logger).WithBatchSize(cfg.GCBatchSize)

	dispatcher := webhook.NewDispatcher(db, cfg.WebhookWorkers, logger)
	dispatcher.Start()
	defer dispatcher.Stop()
	dispatcher.Requeue(ctx, 100)

	publisher := publish.New(db, log, logger, collector, published, dispatcher)
	drafts := service.NewDrafts(db, log, logger)
	assets := service.NewAssets(drafts, blobs, logger)

	sched := scheduler.New(collector, dispatcher, cfg.DraftRetention(), logger)
	if err := sched.Start(cfg.GCSchedule, cfg.PurgeSchedule); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	api := handler.New(handler.Dependencies{
		Queries:   queries,
		Drafts:    drafts,
		Assets:    assets,
		Publisher: publisher,
		Log:       log,
		Published: published,
		Logger:    logger,
	})

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Mount("/api", api.Routes())
	if cfg.BlobBackend == "fs" {
		r.Handle(cfg.AssetsURL+"/*", http.StripPrefix(cfg.AssetsURL+"/",
			http.FileServer(http.Dir(cfg.UploadsDir))))
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
