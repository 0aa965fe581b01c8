package predictions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusml/argus/pkg/formulas"
)

// trendBandPct is the symmetric no-change band for trend classification.
// The mean MAPE of the newest third must move more than this, relative to
// the oldest third, to leave "stable".
const trendBandPct = 5.0

// Monitor validates pending predictions against observed closes and computes
// rolling accuracy metrics over the validated set.
type Monitor struct {
	repo       *Repository
	truth      *GroundTruthFetcher
	minSamples int
	log        zerolog.Logger
	now        func() time.Time
}

// NewMonitor creates a new performance monitor. minSamples is the smallest
// validated sample a metrics window may be computed from.
func NewMonitor(repo *Repository, truth *GroundTruthFetcher, minSamples int, log zerolog.Logger) *Monitor {
	if minSamples < 1 {
		minSamples = 1
	}
	return &Monitor{
		repo:       repo,
		truth:      truth,
		minSamples: minSamples,
		log:        log.With().Str("component", "prediction_monitor").Logger(),
		now:        time.Now,
	}
}

// ValidatePending settles every due prediction for ticker whose close is
// published. Predictions whose close is not yet available stay pending, as
// do predictions whose target fell more than daysBack days ago (0 = no
// limit); those wait for an explicit backfill rather than a daily cycle.
// Returns how many were validated and how many remain pending overall.
func (m *Monitor) ValidatePending(ctx context.Context, ticker string, daysBack int) (validated int, pending int, err error) {
	due, err := m.repo.GetPending(ctx, ticker, m.now())
	if err != nil {
		return 0, 0, err
	}

	var horizon string
	if daysBack > 0 {
		horizon = m.now().AddDate(0, 0, -daysBack).Format(DateLayout)
	}

	for _, p := range due {
		if err := ctx.Err(); err != nil {
			return validated, 0, err
		}

		if horizon != "" && p.TargetDate < horizon {
			m.log.Debug().
				Str("id", p.ID).
				Str("target_date", p.TargetDate).
				Msg("Target older than validation window, left for backfill")
			continue
		}

		observed, provenance, err := m.truth.FetchClose(ctx, ticker, p.TargetDate)
		if errors.Is(err, ErrGroundTruthPending) {
			m.log.Debug().
				Str("id", p.ID).
				Str("target_date", p.TargetDate).
				Msg("Close not yet published, prediction stays pending")
			continue
		}
		if err != nil {
			// Resolution failures are fatal, the caller decides whether to
			// degrade or abort the cycle
			return validated, 0, fmt.Errorf("ground truth for %s (%s): %w", p.ID, p.TargetDate, err)
		}

		if err := m.repo.MarkValidated(ctx, p.ID, observed, provenance, m.now()); err != nil {
			return validated, 0, fmt.Errorf("mark validated %s: %w", p.ID, err)
		}
		validated++

		m.log.Info().
			Str("id", p.ID).
			Str("ticker", ticker).
			Str("target_date", p.TargetDate).
			Float64("predicted", p.PredictedValue).
			Float64("observed", observed).
			Str("provenance", provenance).
			Msg("Validated prediction")
	}

	pending, err = m.repo.CountPending(ctx, ticker)
	if err != nil {
		return validated, 0, err
	}

	return validated, pending, nil
}

// ComputeMetrics builds and persists one accuracy window over predictions
// validated in the last windowDays. Returns ErrInsufficientData when the
// window holds fewer samples than the configured minimum.
func (m *Monitor) ComputeMetrics(ctx context.Context, ticker string, windowDays int) (*Metrics, error) {
	since := m.now().AddDate(0, 0, -windowDays)

	rows, err := m.repo.GetValidatedSince(ctx, ticker, since)
	if err != nil {
		return nil, err
	}
	if len(rows) < m.minSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, len(rows), m.minSamples)
	}

	absErrors := make([]float64, len(rows))
	pctErrors := make([]float64, len(rows))
	for i, p := range rows {
		absErrors[i] = *p.ErrorAbs
		pctErrors[i] = *p.ErrorPct
	}

	minPct, maxPct := pctErrors[0], pctErrors[0]
	for _, e := range pctErrors[1:] {
		if e < minPct {
			minPct = e
		}
		if e > maxPct {
			maxPct = e
		}
	}

	metrics := &Metrics{
		Ticker:      ticker,
		ComputedAt:  m.now().UTC(),
		WindowDays:  windowDays,
		MAE:         formulas.Mean(absErrors),
		MAPE:        formulas.Mean(pctErrors),
		RMSE:        formulas.RMSE(absErrors),
		MinErrorPct: minPct,
		MaxErrorPct: maxPct,
		SampleCount: len(rows),
	}

	if err := m.repo.StoreMetrics(ctx, metrics); err != nil {
		return nil, err
	}

	m.log.Info().
		Str("ticker", ticker).
		Int("samples", metrics.SampleCount).
		Float64("mae", metrics.MAE).
		Float64("mape", metrics.MAPE).
		Msg("Computed accuracy metrics")

	return metrics, nil
}

// Trend classifies the accuracy direction over the metrics history of the
// last historyDays. It compares the mean MAPE of the oldest third against
// the newest third; moves inside the band are stable. The result carries
// both window means and the overall average alongside the classification.
func (m *Monitor) Trend(ctx context.Context, ticker string, historyDays int) (*TrendResult, error) {
	since := m.now().AddDate(0, 0, -historyDays)

	history, err := m.repo.GetMetricsHistory(ctx, ticker, since)
	if err != nil {
		return nil, err
	}
	if len(history) < 3 {
		return &TrendResult{Trend: TrendUnknown, SampleCount: len(history)}, nil
	}

	mapes := make([]float64, len(history))
	for i, h := range history {
		mapes[i] = h.MAPE
	}

	third := len(mapes) / 3
	res := &TrendResult{
		Trend:       TrendStable,
		InitialMAPE: formulas.Mean(mapes[:third]),
		FinalMAPE:   formulas.Mean(mapes[len(mapes)-third:]),
		AverageMAPE: formulas.Mean(mapes),
		SampleCount: len(mapes),
	}

	if res.InitialMAPE == 0 {
		return res, nil
	}

	changePct := (res.FinalMAPE - res.InitialMAPE) / res.InitialMAPE * 100
	switch {
	case changePct < -trendBandPct:
		res.Trend = TrendImproving
	case changePct > trendBandPct:
		res.Trend = TrendDegrading
	}

	return res, nil
}

// DetectDegradation checks the latest MAPE in the metrics history of the
// last historyDays against mapeThreshold and fits a linear slope over the
// history for direction. Returns ErrInsufficientData when no snapshot exists.
func (m *Monitor) DetectDegradation(ctx context.Context, ticker string, historyDays int, mapeThreshold float64) (*Degradation, error) {
	since := m.now().AddDate(0, 0, -historyDays)

	history, err := m.repo.GetMetricsHistory(ctx, ticker, since)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: no metric snapshots for %s", ErrInsufficientData, ticker)
	}

	mapes := make([]float64, len(history))
	for i, h := range history {
		mapes[i] = h.MAPE
	}

	d := &Degradation{
		LatestMAPE:  mapes[len(mapes)-1],
		Threshold:   mapeThreshold,
		Slope:       formulas.LinearSlope(mapes),
		SampleCount: len(mapes),
	}
	d.Degraded = d.LatestMAPE > mapeThreshold

	if d.Degraded {
		m.log.Warn().
			Str("ticker", ticker).
			Float64("mape", d.LatestMAPE).
			Float64("threshold", mapeThreshold).
			Float64("slope", d.Slope).
			Msg("Prediction accuracy degraded")
	}

	return d, nil
}
