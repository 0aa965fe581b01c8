package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusml/argus/internal/config"
	"github.com/argusml/argus/internal/modules/marketdata"
	"github.com/argusml/argus/internal/modules/predictions"
)

// MaintenanceJob is the nightly housekeeping pass: stale cache rows are
// purged and long-settled predictions are archived out of the hot queries.
type MaintenanceJob struct {
	cache    *marketdata.CacheBackend
	predRepo *predictions.Repository
	cfg      config.MaintenanceConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(cache *marketdata.CacheBackend, predRepo *predictions.Repository, cfg config.MaintenanceConfig, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		cache:    cache,
		predRepo: predRepo,
		cfg:      cfg,
		log:      log.With().Str("component", "maintenance").Logger(),
		now:      time.Now,
	}
}

// Name implements the Job interface
func (j *MaintenanceJob) Name() string { return "maintenance" }

// Run implements the Job interface. Each task runs even when the previous
// one fails; the first error is what gets reported.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var firstErr error

	if j.cfg.CacheRetentionDays > 0 {
		cutoff := j.now().AddDate(0, 0, -j.cfg.CacheRetentionDays)
		purged, err := j.cache.Purge(ctx, cutoff)
		if err != nil {
			j.log.Error().Err(err).Msg("Cache purge failed")
			firstErr = err
		} else if purged > 0 {
			j.log.Info().Int64("rows", purged).Msg("Cache purged")
		}
	}

	if j.cfg.ArchiveAfterDays > 0 {
		cutoff := j.now().AddDate(0, 0, -j.cfg.ArchiveAfterDays)
		archived, err := j.predRepo.ArchiveOlderThan(ctx, cutoff)
		if err != nil {
			j.log.Error().Err(err).Msg("Prediction archiving failed")
			if firstErr == nil {
				firstErr = err
			}
		} else if archived > 0 {
			j.log.Info().Int64("rows", archived).Msg("Predictions archived")
		}
	}

	return firstErr
}
