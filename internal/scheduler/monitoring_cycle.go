package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusml/argus/internal/config"
	"github.com/argusml/argus/internal/modules/alerts"
	"github.com/argusml/argus/internal/modules/drift"
	"github.com/argusml/argus/internal/modules/predictions"
)

// driftLookbackDays bounds how far back validated predictions are pulled to
// build the drift sample series. Wide enough to fill the reference window
// even with sparse validations.
const driftLookbackDays = 90

// trendHistoryDays is the metrics history span used for trend classification.
const trendHistoryDays = 30

// MonitoringCycle is the daily orchestration: validate due predictions,
// recompute accuracy metrics, check for drift, and evaluate alerts. Each
// step's output is persisted before the next step runs, so a crashed cycle
// loses nothing and the next run picks up where it left off.
type MonitoringCycle struct {
	cfg       *config.Config
	monitor   *predictions.Monitor
	predRepo  *predictions.Repository
	detector  *drift.Detector
	evaluator *alerts.Evaluator
	cycles    *CycleRepository
	log       zerolog.Logger
	now       func() time.Time

	// one cycle per ticker at a time
	mu      sync.Mutex
	running map[string]bool
}

// NewMonitoringCycle creates a new monitoring cycle job
func NewMonitoringCycle(
	cfg *config.Config,
	monitor *predictions.Monitor,
	predRepo *predictions.Repository,
	detector *drift.Detector,
	evaluator *alerts.Evaluator,
	cycles *CycleRepository,
	log zerolog.Logger,
) *MonitoringCycle {
	return &MonitoringCycle{
		cfg:       cfg,
		monitor:   monitor,
		predRepo:  predRepo,
		detector:  detector,
		evaluator: evaluator,
		cycles:    cycles,
		log:       log.With().Str("component", "monitoring_cycle").Logger(),
		now:       time.Now,
		running:   map[string]bool{},
	}
}

// Name implements the Job interface
func (c *MonitoringCycle) Name() string { return "monitoring_cycle" }

// Run implements the Job interface: one cycle per configured ticker, each
// under its own timeout. A failed ticker never blocks the others.
func (c *MonitoringCycle) Run() error {
	var firstErr error
	for _, ticker := range c.cfg.Tickers {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CycleTimeout)
		_, err := c.RunCycle(ctx, ticker)
		cancel()

		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cycle for %s: %w", ticker, err)
		}
	}
	return firstErr
}

// RunCycle executes one monitoring cycle for ticker and persists its
// summary, complete or partial. Re-running a cycle is safe: validation is
// idempotent and every other step appends a fresh record.
func (c *MonitoringCycle) RunCycle(ctx context.Context, ticker string) (*CycleSummary, error) {
	if !c.tryAcquire(ticker) {
		return nil, fmt.Errorf("cycle already running for %s", ticker)
	}
	defer c.release(ticker)

	summary := &CycleSummary{
		Ticker:    ticker,
		StartedAt: c.now().UTC(),
		State:     CycleStarted,
		Details:   map[string]string{},
	}

	c.log.Info().Str("ticker", ticker).Msg("Monitoring cycle started")

	// Step 1: settle due predictions
	validated, pending, err := c.monitor.ValidatePending(ctx, ticker, c.cfg.ValidationDaysBack)
	if err != nil {
		return c.fail(summary, "validation", err)
	}
	summary.ValidatedCount = validated
	summary.PendingCount = pending
	summary.State = CycleValidationDone

	// Step 2: recompute accuracy metrics; a thin window is not a failure
	metrics, err := c.monitor.ComputeMetrics(ctx, ticker, c.cfg.MetricsWindowDays)
	switch {
	case errors.Is(err, predictions.ErrInsufficientData):
		summary.Details["metrics"] = err.Error()
	case err != nil:
		return c.fail(summary, "metrics", err)
	default:
		summary.MAPE = &metrics.MAPE
	}

	trend, err := c.monitor.Trend(ctx, ticker, trendHistoryDays)
	if err != nil {
		return c.fail(summary, "trend", err)
	}
	summary.Trend = string(trend.Trend)

	// Step 3: drift detection over recently settled closes
	report, err := c.checkDrift(ctx, ticker, summary)
	if err != nil {
		return c.fail(summary, "drift", err)
	}
	summary.State = CycleDriftCheckDone

	// Step 4: alert evaluation; violations are collected first, emitted once
	var violations []alerts.Violation
	if metrics != nil {
		violations = append(violations, c.evaluator.CheckPerformance(metrics)...)
	}
	if report != nil {
		violations = append(violations, c.evaluator.CheckDrift(report)...)
	}
	if trend.Trend == predictions.TrendDegrading {
		violations = append(violations, alerts.Violation{
			Type:     alerts.TypePerformance,
			Severity: alerts.SeverityWarning,
			Message: fmt.Sprintf("%s: prediction accuracy is degrading (MAPE %.2f%% -> %.2f%%)",
				ticker, trend.InitialMAPE, trend.FinalMAPE),
			Metadata: map[string]string{"ticker": ticker, "trend": string(trend.Trend)},
		})
	}

	driftSummary, err := c.detector.GetSummary(ctx, 7)
	if err != nil {
		return c.fail(summary, "alerts", err)
	}
	violations = append(violations, c.evaluator.CheckDriftRate(driftSummary)...)

	emitted, err := c.evaluator.Emit(ctx, violations)
	summary.AlertsEmitted = emitted
	if err != nil {
		return c.fail(summary, "alerts", err)
	}
	summary.State = CycleAlertsEvaluated

	summary.State = CycleCompleted
	summary.FinishedAt = c.now().UTC()
	if err := c.cycles.Append(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to persist cycle summary: %w", err)
	}

	c.log.Info().
		Str("ticker", ticker).
		Int("validated", summary.ValidatedCount).
		Int("pending", summary.PendingCount).
		Str("trend", summary.Trend).
		Int("alerts", summary.AlertsEmitted).
		Msg("Monitoring cycle completed")

	return summary, nil
}

// checkDrift runs detection over the observed closes settled during
// validation. Thin series and missing baselines are recorded, not fatal.
func (c *MonitoringCycle) checkDrift(ctx context.Context, ticker string, summary *CycleSummary) (*drift.Report, error) {
	since := c.now().AddDate(0, 0, -driftLookbackDays)
	rows, err := c.predRepo.GetValidatedSince(ctx, ticker, since)
	if err != nil {
		return nil, err
	}

	samples := make([]drift.Sample, 0, len(rows))
	for _, p := range rows {
		if p.ObservedValue == nil {
			continue
		}
		samples = append(samples, drift.Sample{Date: p.TargetDate, Value: *p.ObservedValue})
	}

	report, err := c.detector.DetectDrift(ctx, ticker, samples)
	if errors.Is(err, drift.ErrInsufficientData) || errors.Is(err, drift.ErrNoProfile) {
		summary.Details["drift"] = err.Error()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	summary.DriftDetected = &report.DriftDetected
	summary.DriftSeverity = string(report.Severity)
	return report, nil
}

// fail records a failed cycle with whatever partial results exist. The
// persisted summary is best effort: persistence errors are logged, the
// original failure is what propagates.
func (c *MonitoringCycle) fail(summary *CycleSummary, step string, cause error) (*CycleSummary, error) {
	summary.State = CycleFailed
	summary.FailedStep = step
	if errors.Is(cause, context.DeadlineExceeded) {
		summary.Details["timeout"] = fmt.Sprintf("cycle exceeded %s", c.cfg.CycleTimeout)
	}
	summary.Details["error"] = cause.Error()
	summary.FinishedAt = c.now().UTC()

	// The cycle context may already be dead, persist with a fresh one
	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.cycles.Append(persistCtx, summary); err != nil {
		c.log.Error().Err(err).Str("ticker", summary.Ticker).Msg("Failed to persist failed cycle summary")
	}

	c.log.Error().
		Err(cause).
		Str("ticker", summary.Ticker).
		Str("step", step).
		Msg("Monitoring cycle failed")

	return summary, fmt.Errorf("%s step failed: %w", step, cause)
}

func (c *MonitoringCycle) tryAcquire(ticker string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running[ticker] {
		return false
	}
	c.running[ticker] = true
	return true
}

func (c *MonitoringCycle) release(ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, ticker)
}
