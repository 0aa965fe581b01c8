package drift

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusml/argus/internal/config"
	"github.com/argusml/argus/pkg/formulas"
)

const (
	// ksMinSamples is the smallest window the KS test runs on; below this
	// the empirical CDFs are too coarse to compare
	ksMinSamples = 5
	// baselineSyntheticAfter switches the baseline KS reference to synthetic
	// draws once the current window is large enough to deserve a full test
	baselineSyntheticAfter = 30
	// baselineSyntheticDraws is the synthetic reference sample size
	baselineSyntheticDraws = 1000
)

// Detector compares the recent prediction error distribution against a
// reference and grades the result. Detection itself is pure; the only side
// effect is persisting the report.
type Detector struct {
	repo *Repository
	cfg  config.DriftConfig
	log  zerolog.Logger
	now  func() time.Time
}

// NewDetector creates a new drift detector
func NewDetector(repo *Repository, cfg config.DriftConfig, log zerolog.Logger) *Detector {
	return &Detector{
		repo: repo,
		cfg:  cfg,
		log:  log.With().Str("component", "drift_detector").Logger(),
		now:  time.Now,
	}
}

// SetReferenceProfile freezes the distribution of samples as the baseline
// profile for ticker.
func (d *Detector) SetReferenceProfile(ctx context.Context, ticker string, samples []Sample) (*Profile, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: have %d, need at least 2", ErrInsufficientData, len(samples))
	}

	values := sampleValues(samples)
	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	q1 := formulas.Quantile(values, 0.25)
	q3 := formulas.Quantile(values, 0.75)

	profile := &Profile{
		Ticker:      ticker,
		ComputedAt:  d.now().UTC(),
		SampleCount: len(values),
		Mean:        formulas.Mean(values),
		Std:         formulas.StdDev(values),
		Min:         minV,
		Max:         maxV,
		Median:      formulas.Median(values),
		Q1:          q1,
		Q3:          q3,
		IQR:         q3 - q1,
	}

	if err := d.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// DetectDrift compares the newest samples against the configured reference
// and persists the resulting report. Samples must be ordered oldest first.
func (d *Detector) DetectDrift(ctx context.Context, ticker string, samples []Sample) (*Report, error) {
	switch Mode(d.cfg.Mode) {
	case ModeBaseline:
		return d.detectBaseline(ctx, ticker, samples)
	default:
		return d.detectSliding(ctx, ticker, samples)
	}
}

// detectSliding compares the last CurrentWindow samples against the
// ReferenceWindow samples immediately before them.
func (d *Detector) detectSliding(ctx context.Context, ticker string, samples []Sample) (*Report, error) {
	if len(samples) < d.cfg.CurrentWindow+2 {
		return nil, fmt.Errorf("%w: have %d samples, need more than %d",
			ErrInsufficientData, len(samples), d.cfg.CurrentWindow+1)
	}

	current := samples[len(samples)-d.cfg.CurrentWindow:]
	rest := samples[:len(samples)-d.cfg.CurrentWindow]
	if len(rest) > d.cfg.ReferenceWindow {
		rest = rest[len(rest)-d.cfg.ReferenceWindow:]
	}

	report := d.compare(ticker, "sliding", ModeSliding,
		windowOf(current), sampleValues(current),
		windowOf(rest), sampleValues(rest))

	if err := d.repo.AppendReport(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// detectBaseline compares recent samples against the frozen profile. Small
// current windows only get the mean and spread tests; once the window is
// large enough, a synthetic reference is drawn from the profile so the KS
// test can run too.
func (d *Detector) detectBaseline(ctx context.Context, ticker string, samples []Sample) (*Report, error) {
	profile, err := d.repo.GetProfile(ctx, ticker)
	if err != nil {
		return nil, err
	}

	if len(samples) > d.cfg.CurrentWindow {
		samples = samples[len(samples)-d.cfg.CurrentWindow:]
	}
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: have %d samples, need at least 2", ErrInsufficientData, len(samples))
	}

	refWindow := WindowStats{
		Start:   "baseline",
		End:     profile.ComputedAt.Format("2006-01-02"),
		Mean:    profile.Mean,
		Std:     profile.Std,
		Samples: profile.SampleCount,
	}

	var refValues []float64
	if len(samples) > baselineSyntheticAfter {
		refValues = syntheticNormal(ticker, profile.Mean, profile.Std, baselineSyntheticDraws)
	}

	report := d.compare(ticker, "baseline", ModeBaseline,
		windowOf(samples), sampleValues(samples),
		refWindow, refValues)

	if err := d.repo.AppendReport(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// compare runs the three tests and grades severity. refValues may be empty,
// in which case the KS test is skipped and only the summary statistics in
// refWindow are used.
func (d *Detector) compare(ticker, windowName string, mode Mode,
	curWindow WindowStats, curValues []float64,
	refWindow WindowStats, refValues []float64) *Report {

	report := &Report{
		Ticker:     ticker,
		ComputedAt: d.now().UTC(),
		WindowName: windowName,
		Mode:       mode,
		Current:    curWindow,
		Reference:  refWindow,
		Severity:   SeverityNone,
		Alerts:     []string{},
	}

	meanFailed := false
	if refWindow.Mean != 0 {
		report.MeanDiffPct = (curWindow.Mean - refWindow.Mean) / math.Abs(refWindow.Mean) * 100
		if math.Abs(report.MeanDiffPct) > d.cfg.MeanThresholdPct {
			meanFailed = true
			report.Alerts = append(report.Alerts, fmt.Sprintf(
				"mean shifted %+.1f%% (threshold %.1f%%)", report.MeanDiffPct, d.cfg.MeanThresholdPct))
		}
	} else if curWindow.Mean != 0 {
		// Reference mean of zero, any nonzero current mean is a shift
		meanFailed = true
		report.MeanDiffPct = math.Inf(1)
		report.Alerts = append(report.Alerts, "mean shifted away from zero reference")
	}

	stdFailed := false
	if refWindow.Std > 0 {
		report.StdDiffPct = (curWindow.Std - refWindow.Std) / refWindow.Std * 100
		if math.Abs(report.StdDiffPct) > d.cfg.StdThresholdPct {
			stdFailed = true
			report.Alerts = append(report.Alerts, fmt.Sprintf(
				"spread shifted %+.1f%% (threshold %.1f%%)", report.StdDiffPct, d.cfg.StdThresholdPct))
		}
	} else {
		// Degenerate reference spread, the test cannot run
		report.Alerts = append(report.Alerts, "spread test skipped: reference std is zero")
	}

	ksFailed := false
	if len(curValues) >= ksMinSamples && len(refValues) >= ksMinSamples {
		stat, p := formulas.KolmogorovSmirnov(curValues, refValues)
		report.KSStatistic = &stat
		report.KSPValue = &p
		if p < d.cfg.SignificanceLevel {
			ksFailed = true
			report.Alerts = append(report.Alerts, fmt.Sprintf(
				"distribution shifted (KS p=%.4f < %.2f)", p, d.cfg.SignificanceLevel))
		}
	}

	report.DriftDetected = meanFailed || stdFailed || ksFailed
	switch {
	case meanFailed && stdFailed:
		report.Severity = SeverityHigh
	case meanFailed || stdFailed:
		report.Severity = SeverityMedium
	case ksFailed:
		if d.cfg.KSEscalatesSeverity {
			report.Severity = SeverityHigh
		} else {
			report.Severity = SeverityMedium
		}
	}

	d.log.Info().
		Str("ticker", ticker).
		Str("mode", string(mode)).
		Bool("drift", report.DriftDetected).
		Str("severity", string(report.Severity)).
		Float64("mean_diff_pct", report.MeanDiffPct).
		Msg("Drift comparison complete")

	return report
}

// GetSummary aggregates reports across all tickers from the last days.
func (d *Detector) GetSummary(ctx context.Context, days int) (*Summary, error) {
	since := d.now().AddDate(0, 0, -days)

	reports, err := d.repo.GetAllReportsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Days:       days,
		BySeverity: map[string]int{},
	}
	for i := range reports {
		rep := &reports[i]
		summary.TotalReports++
		if rep.DriftDetected {
			summary.DriftCount++
			summary.LatestDrifted = rep
		}
		summary.BySeverity[string(rep.Severity)]++
	}
	if summary.TotalReports > 0 {
		summary.DriftRatePct = float64(summary.DriftCount) / float64(summary.TotalReports) * 100
	}

	return summary, nil
}

// AnalyzeDistribution summarizes the shape of a sample set and flags
// outliers outside the 1.5 IQR fences.
func (d *Detector) AnalyzeDistribution(values []float64) (*DistributionAnalysis, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("%w: have %d values, need at least 2", ErrInsufficientData, len(values))
	}

	q1 := formulas.Quantile(values, 0.25)
	q3 := formulas.Quantile(values, 0.75)
	iqr := q3 - q1

	analysis := &DistributionAnalysis{
		SampleCount: len(values),
		Mean:        formulas.Mean(values),
		Std:         formulas.StdDev(values),
		Median:      formulas.Median(values),
		Q1:          q1,
		Q3:          q3,
		IQR:         iqr,
		LowerFence:  q1 - 1.5*iqr,
		UpperFence:  q3 + 1.5*iqr,
		Outliers:    []float64{},
	}

	for _, v := range values {
		if v < analysis.LowerFence || v > analysis.UpperFence {
			analysis.Outliers = append(analysis.Outliers, v)
		}
	}

	return analysis, nil
}

// syntheticNormal draws a deterministic normal sample from the profile
// parameters. The seed derives from the ticker so repeated runs compare the
// same reference.
func syntheticNormal(ticker string, mean, std float64, n int) []float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	out := make([]float64, n)
	for i := range out {
		out[i] = mean + std*rng.NormFloat64()
	}
	return out
}

func sampleValues(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}

func windowOf(samples []Sample) WindowStats {
	if len(samples) == 0 {
		return WindowStats{}
	}
	values := sampleValues(samples)
	return WindowStats{
		Start:   samples[0].Date,
		End:     samples[len(samples)-1].Date,
		Mean:    formulas.Mean(values),
		Std:     formulas.StdDev(values),
		Samples: len(samples),
	}
}
