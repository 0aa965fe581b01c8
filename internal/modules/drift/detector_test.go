package drift

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusml/argus/internal/config"
	"github.com/argusml/argus/internal/database"
)

func newTestRepo(t *testing.T, name string) *Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    "file:" + name + "?mode=memory&cache=shared",
		Profile: database.ProfileLedger,
		Name:    "monitoring",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return NewRepository(db.Conn(), zerolog.Nop())
}

func slidingConfig() config.DriftConfig {
	return config.DriftConfig{
		Mode:              "sliding",
		CurrentWindow:     7,
		ReferenceWindow:   30,
		MeanThresholdPct:  5.0,
		StdThresholdPct:   50.0,
		SignificanceLevel: 0.05,
	}
}

// seriesAround builds n dated samples cycling around center with a fixed
// spread pattern, so mean is exactly center and std is stable across calls.
func seriesAround(center float64, n int, startDay int) []Sample {
	pattern := []float64{-0.3, -0.1, 0.1, 0.3}
	out := make([]Sample, n)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = Sample{
			Date:  base.AddDate(0, 0, startDay+i).Format("2006-01-02"),
			Value: center + pattern[i%len(pattern)],
		}
	}
	return out
}

func TestDetectSlidingNoDriftInsideBand(t *testing.T) {
	detector := NewDetector(newTestRepo(t, "drift_no_drift_test"), slidingConfig(), zerolog.Nop())
	ctx := context.Background()

	// Reference around 10.0, current window nudged to 10.04: +0.4% mean shift
	samples := append(seriesAround(10.0, 28, 0), seriesAround(10.04, 7, 28)...)

	report, err := detector.DetectDrift(ctx, "B3SA3.SA", samples)
	require.NoError(t, err)

	assert.False(t, report.DriftDetected)
	assert.Equal(t, SeverityNone, report.Severity)
	assert.Less(t, report.MeanDiffPct, 5.0)
	assert.Greater(t, report.MeanDiffPct, -5.0)
	assert.Empty(t, report.Alerts)
}

func TestDetectSlidingMeanShiftIsDrift(t *testing.T) {
	detector := NewDetector(newTestRepo(t, "drift_mean_shift_test"), slidingConfig(), zerolog.Nop())
	ctx := context.Background()

	// Current window mean 10.6 against reference 10.0: +6% crosses the 5% gate
	samples := append(seriesAround(10.0, 28, 0), seriesAround(10.6, 7, 28)...)

	report, err := detector.DetectDrift(ctx, "B3SA3.SA", samples)
	require.NoError(t, err)

	assert.True(t, report.DriftDetected)
	assert.NotEqual(t, SeverityNone, report.Severity)
	assert.Greater(t, report.MeanDiffPct, 5.0)
	assert.NotEmpty(t, report.Alerts)
}

func TestDetectSlidingMeanAndSpreadShiftIsHigh(t *testing.T) {
	detector := NewDetector(newTestRepo(t, "drift_high_test"), slidingConfig(), zerolog.Nop())
	ctx := context.Background()

	reference := seriesAround(10.0, 28, 0)
	// Current window: mean +10%, spread roughly quadrupled
	current := make([]Sample, 7)
	pattern := []float64{-1.2, -0.4, 0.4, 1.2}
	base := time.Date(2025, 6, 29, 0, 0, 0, 0, time.UTC)
	for i := range current {
		current[i] = Sample{
			Date:  base.AddDate(0, 0, i).Format("2006-01-02"),
			Value: 11.0 + pattern[i%len(pattern)],
		}
	}

	report, err := detector.DetectDrift(ctx, "B3SA3.SA", append(reference, current...))
	require.NoError(t, err)

	assert.True(t, report.DriftDetected)
	assert.Equal(t, SeverityHigh, report.Severity)
}

func TestDetectSlidingInsufficientData(t *testing.T) {
	detector := NewDetector(newTestRepo(t, "drift_insufficient_test"), slidingConfig(), zerolog.Nop())

	_, err := detector.DetectDrift(context.Background(), "B3SA3.SA", seriesAround(10.0, 5, 0))
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestDetectSlidingPersistsReport(t *testing.T) {
	repo := newTestRepo(t, "drift_persist_test")
	detector := NewDetector(repo, slidingConfig(), zerolog.Nop())
	ctx := context.Background()

	samples := append(seriesAround(10.0, 28, 0), seriesAround(10.6, 7, 28)...)
	report, err := detector.DetectDrift(ctx, "B3SA3.SA", samples)
	require.NoError(t, err)
	require.NotZero(t, report.ID)

	stored, err := repo.GetLatestReport(ctx, "B3SA3.SA")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, report.ID, stored.ID)
	assert.Equal(t, report.DriftDetected, stored.DriftDetected)
	assert.Equal(t, report.Severity, stored.Severity)
	assert.Equal(t, report.Alerts, stored.Alerts)
}

func baselineConfig() config.DriftConfig {
	cfg := slidingConfig()
	cfg.Mode = "baseline"
	cfg.MeanThresholdPct = 10.0
	cfg.StdThresholdPct = 20.0
	return cfg
}

func TestDetectBaselineAgainstProfile(t *testing.T) {
	repo := newTestRepo(t, "drift_baseline_test")
	detector := NewDetector(repo, baselineConfig(), zerolog.Nop())
	ctx := context.Background()

	_, err := detector.SetReferenceProfile(ctx, "B3SA3.SA", seriesAround(10.0, 40, 0))
	require.NoError(t, err)

	// Current window 20% above the frozen baseline
	report, err := detector.DetectDrift(ctx, "B3SA3.SA", seriesAround(12.0, 7, 60))
	require.NoError(t, err)

	assert.Equal(t, ModeBaseline, report.Mode)
	assert.True(t, report.DriftDetected)
	assert.InDelta(t, 20.0, report.MeanDiffPct, 0.5)
	// Window too small for a synthetic reference, so no KS result
	assert.Nil(t, report.KSPValue)
}

func TestDetectBaselineWithoutProfile(t *testing.T) {
	detector := NewDetector(newTestRepo(t, "drift_no_profile_test"), baselineConfig(), zerolog.Nop())

	_, err := detector.DetectDrift(context.Background(), "B3SA3.SA", seriesAround(10.0, 7, 0))
	assert.True(t, errors.Is(err, ErrNoProfile))
}

func TestSetReferenceProfileRoundTrip(t *testing.T) {
	repo := newTestRepo(t, "drift_profile_roundtrip_test")
	detector := NewDetector(repo, baselineConfig(), zerolog.Nop())
	ctx := context.Background()

	profile, err := detector.SetReferenceProfile(ctx, "B3SA3.SA", seriesAround(10.0, 40, 0))
	require.NoError(t, err)

	assert.Equal(t, 40, profile.SampleCount)
	assert.InDelta(t, 10.0, profile.Mean, 1e-9)
	assert.InDelta(t, 10.0, profile.Median, 0.11)
	assert.Greater(t, profile.Std, 0.0)
	assert.InDelta(t, profile.Q3-profile.Q1, profile.IQR, 1e-9)

	stored, err := repo.GetProfile(ctx, "B3SA3.SA")
	require.NoError(t, err)
	assert.Equal(t, profile.Mean, stored.Mean)
	assert.Equal(t, profile.Std, stored.Std)

	// Re-freezing replaces the profile in place
	_, err = detector.SetReferenceProfile(ctx, "B3SA3.SA", seriesAround(11.0, 40, 0))
	require.NoError(t, err)
	replaced, err := repo.GetProfile(ctx, "B3SA3.SA")
	require.NoError(t, err)
	assert.InDelta(t, 11.0, replaced.Mean, 1e-9)
}

func TestGetSummaryCountsDriftedReports(t *testing.T) {
	repo := newTestRepo(t, "drift_summary_test")
	detector := NewDetector(repo, slidingConfig(), zerolog.Nop())
	ctx := context.Background()

	// Two clean runs, one drifted
	for i, center := range []float64{10.02, 10.01, 10.9} {
		ticker := fmt.Sprintf("TICK%d.SA", i)
		samples := append(seriesAround(10.0, 28, 0), seriesAround(center, 7, 28)...)
		_, err := detector.DetectDrift(ctx, ticker, samples)
		require.NoError(t, err)
	}

	summary, err := detector.GetSummary(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalReports)
	assert.Equal(t, 1, summary.DriftCount)
	assert.InDelta(t, 33.3, summary.DriftRatePct, 0.1)
	require.NotNil(t, summary.LatestDrifted)
	assert.Equal(t, "TICK2.SA", summary.LatestDrifted.Ticker)
}

func TestAnalyzeDistributionFlagsOutliers(t *testing.T) {
	detector := NewDetector(newTestRepo(t, "drift_analyze_test"), slidingConfig(), zerolog.Nop())

	values := []float64{1.0, 1.1, 0.9, 1.2, 0.8, 1.05, 0.95, 9.0}
	analysis, err := detector.AnalyzeDistribution(values)
	require.NoError(t, err)

	assert.Equal(t, 8, analysis.SampleCount)
	require.Len(t, analysis.Outliers, 1)
	assert.Equal(t, 9.0, analysis.Outliers[0])

	_, err = detector.AnalyzeDistribution([]float64{1.0})
	assert.True(t, errors.Is(err, ErrInsufficientData))
}
