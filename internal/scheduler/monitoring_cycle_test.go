package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusml/argus/internal/config"
	"github.com/argusml/argus/internal/database"
	"github.com/argusml/argus/internal/modules/alerts"
	"github.com/argusml/argus/internal/modules/drift"
	"github.com/argusml/argus/internal/modules/marketdata"
	"github.com/argusml/argus/internal/modules/predictions"
)

// fixedResolver serves a static bar series, keyed by date range.
type fixedResolver struct {
	bars []marketdata.Bar
}

func (f *fixedResolver) Resolve(ctx context.Context, ticker string, start, end time.Time) (*marketdata.Result, error) {
	lo := start.Format(marketdata.DateLayout)
	hi := end.Format(marketdata.DateLayout)
	var out []marketdata.Bar
	for _, b := range f.bars {
		if b.Date >= lo && b.Date <= hi {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, marketdata.ErrDataUnavailable
	}
	return &marketdata.Result{Bars: out, Provenance: "yahoo"}, nil
}

type cycleFixture struct {
	cycle    *MonitoringCycle
	predRepo *predictions.Repository
	cycles   *CycleRepository
	alerts   *alerts.Evaluator
}

func newCycleFixture(t *testing.T, dbName string, resolver predictions.BarResolver) *cycleFixture {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    "file:" + dbName + "?mode=memory&cache=shared",
		Profile: database.ProfileLedger,
		Name:    "monitoring",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Tickers:           []string{"B3SA3.SA"},
		CycleTimeout:      time.Minute,
		MetricsWindowDays: 7,
		MinSamples:        3,
		Drift: config.DriftConfig{
			Mode:              "sliding",
			CurrentWindow:     7,
			ReferenceWindow:   30,
			MeanThresholdPct:  5.0,
			StdThresholdPct:   50.0,
			SignificanceLevel: 0.05,
		},
		Thresholds: config.ThresholdsConfig{
			MAE:          2.0,
			MAPE:         5.0,
			ErrorRate:    0.05,
			DriftRatePct: 50.0,
		},
	}

	log := zerolog.Nop()
	predRepo := predictions.NewRepository(db.Conn(), log)
	truth := predictions.NewGroundTruthFetcher(resolver, log)
	monitor := predictions.NewMonitor(predRepo, truth, cfg.MinSamples, log)

	driftRepo := drift.NewRepository(db.Conn(), log)
	detector := drift.NewDetector(driftRepo, cfg.Drift, log)

	alertRepo := alerts.NewRepository(db.Conn(), log)
	evaluator := alerts.NewEvaluator(alertRepo, cfg.Thresholds, []alerts.Channel{alerts.NewLogChannel(log)}, log)

	cycles := NewCycleRepository(db.Conn(), log)
	cycle := NewMonitoringCycle(cfg, monitor, predRepo, detector, evaluator, cycles, log)

	return &cycleFixture{cycle: cycle, predRepo: predRepo, cycles: cycles, alerts: evaluator}
}

func daysAgo(n int) string {
	return time.Now().UTC().AddDate(0, 0, -n).Format(predictions.DateLayout)
}

func TestRunCycleCompletes(t *testing.T) {
	resolver := &fixedResolver{bars: []marketdata.Bar{
		{Date: daysAgo(5), Open: 101, High: 103, Low: 97, Close: 102},
		{Date: daysAgo(4), Open: 99, High: 101, Low: 97, Close: 98},
		{Date: daysAgo(3), Open: 100, High: 101, Low: 99, Close: 100},
	}}
	f := newCycleFixture(t, "cycle_complete_test", resolver)
	ctx := context.Background()

	issued := time.Now().UTC().AddDate(0, 0, -10)
	for _, target := range []string{daysAgo(5), daysAgo(4), daysAgo(3)} {
		_, err := f.predRepo.Register(ctx, "B3SA3.SA", issued, target, 100.0)
		require.NoError(t, err)
	}

	summary, err := f.cycle.RunCycle(ctx, "B3SA3.SA")
	require.NoError(t, err)

	assert.Equal(t, CycleCompleted, summary.State)
	assert.Equal(t, 3, summary.ValidatedCount)
	assert.Equal(t, 0, summary.PendingCount)
	require.NotNil(t, summary.MAPE)
	// errors: 1.96%, 2.04%, 0%
	assert.InDelta(t, 1.334, *summary.MAPE, 0.01)
	// Too few samples for the sliding comparison, noted rather than failed
	assert.Contains(t, summary.Details, "drift")
	assert.Nil(t, summary.DriftDetected)

	stored, err := f.cycles.GetRecent(ctx, "B3SA3.SA", 5)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, CycleCompleted, stored[0].State)
}

func TestRunCycleEmitsPerformanceAlerts(t *testing.T) {
	// Predicted 100, observed 90: 11.1% error blows both MAPE and MAE gates
	resolver := &fixedResolver{bars: []marketdata.Bar{
		{Date: daysAgo(5), Open: 90, High: 92, Low: 89, Close: 90},
		{Date: daysAgo(4), Open: 90, High: 92, Low: 89, Close: 90},
		{Date: daysAgo(3), Open: 90, High: 92, Low: 89, Close: 90},
	}}
	f := newCycleFixture(t, "cycle_alerts_test", resolver)
	ctx := context.Background()

	issued := time.Now().UTC().AddDate(0, 0, -10)
	for _, target := range []string{daysAgo(5), daysAgo(4), daysAgo(3)} {
		_, err := f.predRepo.Register(ctx, "B3SA3.SA", issued, target, 100.0)
		require.NoError(t, err)
	}

	summary, err := f.cycle.RunCycle(ctx, "B3SA3.SA")
	require.NoError(t, err)

	assert.Equal(t, CycleCompleted, summary.State)
	assert.Equal(t, 2, summary.AlertsEmitted)

	events, err := f.alerts.GetRecent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRunCycleFailsWhenDataUnavailable(t *testing.T) {
	// Prediction far enough in the past that the grace window has elapsed,
	// and no backend has data: validation fails, partial summary persists
	f := newCycleFixture(t, "cycle_failed_test", &fixedResolver{})
	ctx := context.Background()

	issued := time.Now().UTC().AddDate(0, 0, -40)
	_, err := f.predRepo.Register(ctx, "B3SA3.SA", issued, daysAgo(30), 100.0)
	require.NoError(t, err)

	summary, err := f.cycle.RunCycle(ctx, "B3SA3.SA")
	require.Error(t, err)

	assert.Equal(t, CycleFailed, summary.State)
	assert.Equal(t, "validation", summary.FailedStep)
	assert.Contains(t, summary.Details, "error")

	stored, err := f.cycles.GetRecent(ctx, "B3SA3.SA", 5)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, CycleFailed, stored[0].State)
	assert.Equal(t, "validation", stored[0].FailedStep)
}

func TestRunCycleRejectsConcurrentRuns(t *testing.T) {
	f := newCycleFixture(t, "cycle_concurrent_test", &fixedResolver{})

	require.True(t, f.cycle.tryAcquire("B3SA3.SA"))
	defer f.cycle.release("B3SA3.SA")

	_, err := f.cycle.RunCycle(context.Background(), "B3SA3.SA")
	assert.ErrorContains(t, err, "already running")

	// A different ticker is unaffected
	assert.True(t, f.cycle.tryAcquire("PETR4.SA"))
	f.cycle.release("PETR4.SA")
}

func TestRunCycleIsRepeatable(t *testing.T) {
	resolver := &fixedResolver{bars: []marketdata.Bar{
		{Date: daysAgo(5), Open: 101, High: 103, Low: 97, Close: 102},
	}}
	f := newCycleFixture(t, "cycle_repeat_test", resolver)
	ctx := context.Background()

	issued := time.Now().UTC().AddDate(0, 0, -10)
	p, err := f.predRepo.Register(ctx, "B3SA3.SA", issued, daysAgo(5), 100.0)
	require.NoError(t, err)

	first, err := f.cycle.RunCycle(ctx, "B3SA3.SA")
	require.NoError(t, err)
	assert.Equal(t, 1, first.ValidatedCount)

	// The second run validates nothing new and rewrites nothing
	second, err := f.cycle.RunCycle(ctx, "B3SA3.SA")
	require.NoError(t, err)
	assert.Equal(t, 0, second.ValidatedCount)

	got, err := f.predRepo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 102.0, *got.ObservedValue)

	stored, err := f.cycles.GetRecent(ctx, "B3SA3.SA", 5)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
