// Package main is the entry point for the Argus prediction monitoring service.
// Argus tracks stock price predictions against realized market data, computes
// rolling error metrics, watches for statistical drift, and raises alerts
// when the model degrades.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/argusml/argus/internal/config"
	"github.com/argusml/argus/internal/database"
	"github.com/argusml/argus/internal/di"
	"github.com/argusml/argus/internal/scheduler"
	"github.com/argusml/argus/internal/server"
	"github.com/argusml/argus/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().
		Strs("tickers", cfg.Tickers).
		Str("drift_mode", cfg.Drift.Mode).
		Msg("Starting Argus")

	// Databases: the monitoring ledger and the market data cache
	monitoringDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "monitoring.db"),
		Profile: database.ProfileLedger,
		Name:    "monitoring",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open monitoring database")
	}
	defer monitoringDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := monitoringDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate monitoring database")
	}
	if err := cacheDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate cache database")
	}

	// Wire all services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.NewContainer(ctx, cfg, monitoringDB, cacheDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	// Scheduled jobs
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.CycleSchedule, container.MonitoringCycle); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule monitoring cycle")
	}
	if err := sched.AddJob(cfg.Maintenance.Schedule, container.Maintenance); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule maintenance")
	}
	if container.BackupService != nil {
		if err := sched.AddJob(cfg.Backup.Schedule, container.BackupService); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule backups")
		}
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Log:          log,
		MonitoringDB: monitoringDB,
		CacheDB:      cacheDB,
		Config:       cfg,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		Container:    container,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Argus stopped")
}
