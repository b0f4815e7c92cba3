// Rastreador - Links political contributions to public contracts.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/rastreador/internal/analysis"
	"github.com/opensource-finance/rastreador/internal/api"
	"github.com/opensource-finance/rastreador/internal/bus"
	"github.com/opensource-finance/rastreador/internal/cache"
	"github.com/opensource-finance/rastreador/internal/domain"
	"github.com/opensource-finance/rastreador/internal/repository"
	"github.com/opensource-finance/rastreador/internal/rules"
	"github.com/opensource-finance/rastreador/internal/service"
	"github.com/opensource-finance/rastreador/internal/telemetry"
	"github.com/opensource-finance/rastreador/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("RASTREADOR_CONFIG"), "Path to YAML config file")
	flag.Parse()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := domain.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(telemetry.NewLogger(os.Stdout, cfg.Logging))

	slog.Info("starting rastreador",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"default_window_months", cfg.Analysis.DefaultWindowMonths,
		"tracing", cfg.Tracing.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, os.Stderr, cfg.Tracing, Version)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	// Initialize Event Bus
	events, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	if events != nil {
		defer events.Close()
	}
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize alert filter engine
	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize filter engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	analyzer := analysis.NewAnalyzer(engine, cfg.Analysis.TopDonors)
	svc := service.New(repo, cacheImpl, analyzer, cfg.Analysis).WithEvents(events)

	// Background result warm-up
	if events != nil && len(cfg.Analysis.WarmWorkspaces) > 0 {
		w := worker.NewWorker(events, svc)
		if err := w.Start(worker.Config{WorkspaceIDs: cfg.Analysis.WarmWorkspaces}); err != nil {
			slog.Error("failed to start worker", "error", err)
			os.Exit(1)
		}
		defer w.Stop()
	}

	srv := api.NewServer(cfg.Server, cfg.Analysis, svc, repo, cacheImpl, Version)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	slog.Info("rastreador is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("rastreador shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  RASTREADOR")
	fmt.Println("  Contributions vs. public contracts")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints (X-Workspace-ID header required):")
	fmt.Println("    POST /datasets/contributions - Upload contributions (multipart \"file\")")
	fmt.Println("    POST /datasets/contracts     - Upload contract tables (multipart \"files\")")
	fmt.Println("    GET  /datasets               - List loaded datasets")
	fmt.Println("    GET  /parties                - Party filter choices")
	fmt.Println("    POST /analyses               - Run an analysis")
	fmt.Println("    GET  /analyses               - Analysis history")
	fmt.Println("    GET  /analyses/{id}          - Stored analysis result")
	fmt.Println("    GET  /alerts.csv             - Download alerts as CSV")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
