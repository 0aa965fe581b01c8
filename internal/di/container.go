// Package di provides dependency injection for service implementations.
package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/argusml/argus/internal/clients/twelvedata"
	"github.com/argusml/argus/internal/clients/yahoo"
	"github.com/argusml/argus/internal/config"
	"github.com/argusml/argus/internal/database"
	"github.com/argusml/argus/internal/modules/alerts"
	"github.com/argusml/argus/internal/modules/drift"
	"github.com/argusml/argus/internal/modules/marketdata"
	"github.com/argusml/argus/internal/modules/predictions"
	"github.com/argusml/argus/internal/reliability"
	"github.com/argusml/argus/internal/scheduler"
)

// Container holds all constructed services. It is the single source of
// truth for service creation: everything is wired here, in dependency
// order, and handed to the server and scheduler.
type Container struct {
	// Clients
	YahooClient      *yahoo.Client
	TwelveDataClient *twelvedata.Client

	// Market data
	Cache    *marketdata.CacheBackend
	Resolver *marketdata.Resolver

	// Predictions
	PredictionRepo     *predictions.Repository
	GroundTruthFetcher *predictions.GroundTruthFetcher
	Monitor            *predictions.Monitor

	// Drift
	DriftRepo *drift.Repository
	Detector  *drift.Detector

	// Alerts
	AlertRepo *alerts.Repository
	Evaluator *alerts.Evaluator

	// Orchestration
	CycleRepo       *scheduler.CycleRepository
	MonitoringCycle *scheduler.MonitoringCycle
	Maintenance     *scheduler.MaintenanceJob

	// Reliability (nil when backups are not configured)
	BackupService *reliability.BackupService
}

// NewContainer creates all services from the configuration and the two
// open databases. Services are created in dependency order.
func NewContainer(ctx context.Context, cfg *config.Config, monitoringDB, cacheDB *database.DB, log zerolog.Logger) (*Container, error) {
	c := &Container{}

	// Clients
	c.YahooClient = yahoo.NewClient(log)
	if cfg.TwelveDataAPIKey != "" {
		c.TwelveDataClient = twelvedata.NewClient(cfg.TwelveDataAPIKey, log)
	}

	// Market data backends, in configured priority order
	c.Cache = marketdata.NewCacheBackend(cacheDB, log)

	var backends []marketdata.SourceBackend
	for _, name := range cfg.Resolver.Priority {
		switch name {
		case "cache":
			backends = append(backends, c.Cache)
		case "yahoo":
			backends = append(backends, marketdata.NewYahooBackend(c.YahooClient))
		case "twelvedata":
			if c.TwelveDataClient == nil {
				log.Warn().Msg("Twelve Data backend configured but TWELVEDATA_API_KEY is unset, skipping")
				continue
			}
			backends = append(backends, marketdata.NewTwelveDataBackend(c.TwelveDataClient))
		case "snapshot":
			backends = append(backends, marketdata.NewSnapshotBackend(log))
		default:
			return nil, fmt.Errorf("unknown market data backend %q", name)
		}
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no usable market data backends after filtering")
	}
	c.Resolver = marketdata.NewResolver(backends, c.Cache, cfg.Resolver, log)

	// Predictions
	c.PredictionRepo = predictions.NewRepository(monitoringDB.Conn(), log)
	c.GroundTruthFetcher = predictions.NewGroundTruthFetcher(c.Resolver, log)
	c.Monitor = predictions.NewMonitor(c.PredictionRepo, c.GroundTruthFetcher, cfg.MinSamples, log)

	// Drift
	c.DriftRepo = drift.NewRepository(monitoringDB.Conn(), log)
	c.Detector = drift.NewDetector(c.DriftRepo, cfg.Drift, log)

	// Alerts
	c.AlertRepo = alerts.NewRepository(monitoringDB.Conn(), log)
	channels := []alerts.Channel{alerts.NewLogChannel(log)}
	if cfg.WebhookURL != "" {
		channels = append(channels, alerts.NewWebhookChannel(cfg.WebhookURL, log))
	}
	c.Evaluator = alerts.NewEvaluator(c.AlertRepo, cfg.Thresholds, channels, log)

	// Orchestration
	c.CycleRepo = scheduler.NewCycleRepository(monitoringDB.Conn(), log)
	c.MonitoringCycle = scheduler.NewMonitoringCycle(
		cfg, c.Monitor, c.PredictionRepo, c.Detector, c.Evaluator, c.CycleRepo, log)
	c.Maintenance = scheduler.NewMaintenanceJob(c.Cache, c.PredictionRepo, cfg.Maintenance, log)

	// Backups, only when a bucket is configured
	if cfg.Backup.Bucket != "" {
		s3, err := reliability.NewS3Client(ctx, cfg.Backup, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize backup storage: %w", err)
		}
		c.BackupService = reliability.NewBackupService(
			[]*database.DB{monitoringDB, cacheDB}, s3, cfg.DataDir, cfg.Backup.RetentionDays, log)
	}

	return c, nil
}
