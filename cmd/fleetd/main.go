package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"fleet-audit-backend/config"
	"fleet-audit-backend/internal/api"
	"fleet-audit-backend/internal/db"
	"fleet-audit-backend/internal/fleet"
	"fleet-audit-backend/internal/logging"
	"fleet-audit-backend/internal/metrics"
	"fleet-audit-backend/internal/poller"
	"fleet-audit-backend/internal/report"
	"fleet-audit-backend/internal/store"
)

func main() {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("configuration loaded", zap.String("path", configPath))

	metrics.Init()

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("driver", cfg.Database.Driver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, logger.Named("store"))

	live := fleet.NewLiveness(cfg.Liveness.StaleThreshold)
	rec := fleet.NewReconciler(fleet.ReconcileParams{
		DailyCapMinutes:         cfg.Reconcile.DailyCapMinutes,
		CumulativeBufferMinutes: cfg.Reconcile.CumulativeBufferMinutes,
		MaterialitySeconds:      cfg.Reconcile.MaterialitySeconds,
	}, logger.Named("reconcile"))
	synth := report.NewSynthesizer(appStore, live, rec, report.Options{
		FetchTimeout:   cfg.Report.FetchTimeout,
		MaxConcurrency: cfg.Report.MaxConcurrency,
	}, logger.Named("report"))

	// Run the poller in the background
	pollerSvc := poller.NewService(&cfg.Poller, appStore, logger)
	go pollerSvc.Run(ctx)

	handler := api.NewHandler(appStore, live, rec, synth, logger.Named("api"))
	router := api.NewRouter(handler, cfg.Server)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}

	logger.Info("server gracefully stopped")
}
