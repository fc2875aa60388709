package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go_signal_engine/config"
	"go_signal_engine/controllers"
	"go_signal_engine/models"
	"go_signal_engine/routes"
	"go_signal_engine/scheduler"
	"go_signal_engine/services/bars"
	"go_signal_engine/services/datafetcher"
	"go_signal_engine/services/jobs"
	"go_signal_engine/services/realtime"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Environment)
	defer logger.Sync()

	db, err := config.InitDB()
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}

	if err := models.MigrateJobModels(db); err != nil {
		logger.Fatal("job model migration failed", zap.Error(err))
	}
	if err := models.MigrateStockModels(db); err != nil {
		logger.Fatal("stock model migration failed", zap.Error(err))
	}
	logger.Info("database migrated")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	snapshots, err := realtime.Connect(ctx, cfg.MongoURI, logger)
	cancel()
	if err != nil {
		logger.Fatal("realtime store init failed", zap.Error(err))
	}

	store := bars.NewStore(db, logger)
	fetcher := datafetcher.NewClient(cfg.ProviderBaseURL, cfg.ProviderTimeout, cfg.FetchWorkers, logger)

	ledger := jobs.NewLedger(db, logger)
	locker := jobs.NewAdvisoryLocker(db, logger)
	runner := jobs.NewRunner(ledger, locker, cfg.KeepRunsPerJob, logger)

	bodies := jobs.NewBodies(db, store, fetcher, snapshots, jobs.Options{
		SignalWindowBars: cfg.SignalWindowBars,
		RetentionDays:    cfg.RetentionDays,
	}, logger)
	bodies.RegisterAll(runner)

	sched, err := scheduler.New(runner, cfg, logger)
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	jobCtrl := controllers.NewJobController(runner, ledger, db, logger)
	marketCtrl := controllers.NewMarketController(db, snapshots, logger)
	routes.SetupRoutes(router, jobCtrl, marketCtrl)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := snapshots.Close(shutdownCtx); err != nil {
		logger.Error("realtime store close failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(environment string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	return logger
}
