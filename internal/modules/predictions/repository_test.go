package predictions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestRegisterRejectsInvalidTargetDate(t *testing.T) {
	repo := newTestRepo(t, "repo_register_invalid_test")
	ctx := context.Background()
	issued := time.Date(2025, 8, 20, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		targetDate string
	}{
		{"malformed date", "20-08-2025"},
		{"empty date", ""},
		{"same day", "2025-08-20"},
		{"day before", "2025-08-19"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Register(ctx, "B3SA3.SA", issued, tt.targetDate, 10.50)
			assert.True(t, errors.Is(err, ErrInvalidTargetDate))
		})
	}
}

func TestRegisterAndGetByID(t *testing.T) {
	repo := newTestRepo(t, "repo_register_test")
	ctx := context.Background()
	issued := time.Date(2025, 8, 20, 14, 0, 0, 0, time.UTC)

	p, err := repo.Register(ctx, "B3SA3.SA", issued, "2025-08-22", 10.50)
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "B3SA3.SA", got.Ticker)
	assert.Equal(t, "2025-08-22", got.TargetDate)
	assert.Equal(t, 10.50, got.PredictedValue)
	assert.False(t, got.Validated)
	assert.Nil(t, got.ObservedValue)

	_, err = repo.GetByID(ctx, "no-such-id")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMarkValidatedComputesErrors(t *testing.T) {
	repo := newTestRepo(t, "repo_validate_test")
	ctx := context.Background()
	issued := time.Date(2025, 8, 20, 14, 0, 0, 0, time.UTC)

	p, err := repo.Register(ctx, "B3SA3.SA", issued, "2025-08-22", 100.0)
	require.NoError(t, err)

	validatedAt := time.Date(2025, 8, 23, 21, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkValidated(ctx, p.ID, 102.0, "yahoo", validatedAt))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.Validated)
	require.NotNil(t, got.ObservedValue)
	assert.Equal(t, 102.0, *got.ObservedValue)
	assert.InDelta(t, 2.0, *got.ErrorAbs, 1e-9)
	assert.InDelta(t, 1.9608, *got.ErrorPct, 1e-3)
	assert.Equal(t, "yahoo", got.SourceProvenance)
	require.NotNil(t, got.ValidatedAt)
	assert.True(t, got.ValidatedAt.Equal(validatedAt))
}

func TestMarkValidatedIsIdempotent(t *testing.T) {
	repo := newTestRepo(t, "repo_idempotent_test")
	ctx := context.Background()
	issued := time.Date(2025, 8, 20, 14, 0, 0, 0, time.UTC)

	p, err := repo.Register(ctx, "B3SA3.SA", issued, "2025-08-22", 100.0)
	require.NoError(t, err)

	require.NoError(t, repo.MarkValidated(ctx, p.ID, 102.0, "yahoo", time.Now()))

	// A second validation with a different observation must not rewrite history
	require.NoError(t, repo.MarkValidated(ctx, p.ID, 999.0, "twelvedata", time.Now()))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 102.0, *got.ObservedValue)
	assert.Equal(t, "yahoo", got.SourceProvenance)

	err = repo.MarkValidated(ctx, "no-such-id", 10.0, "yahoo", time.Now())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetPendingFiltersByTargetDate(t *testing.T) {
	repo := newTestRepo(t, "repo_pending_test")
	ctx := context.Background()
	issued := time.Date(2025, 8, 18, 14, 0, 0, 0, time.UTC)

	due, err := repo.Register(ctx, "B3SA3.SA", issued, "2025-08-20", 10.50)
	require.NoError(t, err)
	_, err = repo.Register(ctx, "B3SA3.SA", issued, "2025-09-20", 10.80)
	require.NoError(t, err)
	_, err = repo.Register(ctx, "PETR4.SA", issued, "2025-08-20", 37.20)
	require.NoError(t, err)

	asOf := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)
	got, err := repo.GetPending(ctx, "B3SA3.SA", asOf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)

	count, err := repo.CountPending(ctx, "B3SA3.SA")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGetValidatedSince(t *testing.T) {
	repo := newTestRepo(t, "repo_validated_since_test")
	ctx := context.Background()
	issued := time.Date(2025, 8, 1, 14, 0, 0, 0, time.UTC)

	old, err := repo.Register(ctx, "B3SA3.SA", issued, "2025-08-05", 10.0)
	require.NoError(t, err)
	recent, err := repo.Register(ctx, "B3SA3.SA", issued, "2025-08-06", 10.2)
	require.NoError(t, err)

	require.NoError(t, repo.MarkValidated(ctx, old.ID, 10.1, "yahoo",
		time.Date(2025, 8, 10, 21, 0, 0, 0, time.UTC)))
	require.NoError(t, repo.MarkValidated(ctx, recent.ID, 10.3, "yahoo",
		time.Date(2025, 8, 20, 21, 0, 0, 0, time.UTC)))

	since := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	got, err := repo.GetValidatedSince(ctx, "B3SA3.SA", since)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recent.ID, got[0].ID)
}

func TestGetValidatedSinceOrdersByTargetDate(t *testing.T) {
	repo := newTestRepo(t, "repo_validated_order_test")
	ctx := context.Background()
	issued := time.Date(2025, 8, 1, 14, 0, 0, 0, time.UTC)

	// The earliest target settles last, as a backfill would
	targets := []string{"2025-08-06", "2025-08-07", "2025-08-05"}
	validatedAt := []time.Time{
		time.Date(2025, 8, 10, 21, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 11, 21, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 20, 21, 0, 0, 0, time.UTC),
	}
	for i, target := range targets {
		p, err := repo.Register(ctx, "B3SA3.SA", issued, target, 10.0)
		require.NoError(t, err)
		require.NoError(t, repo.MarkValidated(ctx, p.ID, 10.1, "yahoo", validatedAt[i]))
	}

	got, err := repo.GetValidatedSince(ctx, "B3SA3.SA", issued)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2025-08-05", got[0].TargetDate)
	assert.Equal(t, "2025-08-06", got[1].TargetDate)
	assert.Equal(t, "2025-08-07", got[2].TargetDate)
}

func TestArchiveOlderThanHidesRows(t *testing.T) {
	repo := newTestRepo(t, "repo_archive_test")
	ctx := context.Background()

	old, err := repo.Register(ctx, "B3SA3.SA",
		time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC), "2025-01-15", 9.8)
	require.NoError(t, err)
	_, err = repo.Register(ctx, "B3SA3.SA",
		time.Date(2025, 8, 20, 14, 0, 0, 0, time.UTC), "2025-08-22", 10.5)
	require.NoError(t, err)

	archived, err := repo.ArchiveOlderThan(ctx, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), archived)

	rows, err := repo.GetRecent(ctx, "B3SA3.SA", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEqual(t, old.ID, rows[0].ID)

	// Archived rows still exist, they are just hidden
	got, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)
}

func TestMetricsRoundTrip(t *testing.T) {
	repo := newTestRepo(t, "repo_metrics_test")
	ctx := context.Background()

	m := &Metrics{
		Ticker:      "B3SA3.SA",
		ComputedAt:  time.Date(2025, 8, 20, 21, 0, 0, 0, time.UTC),
		WindowDays:  7,
		MAE:         0.21,
		MAPE:        1.98,
		RMSE:        0.25,
		MinErrorPct: 0.4,
		MaxErrorPct: 3.6,
		SampleCount: 5,
	}
	require.NoError(t, repo.StoreMetrics(ctx, m))

	latest, err := repo.GetLatestMetrics(ctx, "B3SA3.SA")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, m.MAPE, latest.MAPE)
	assert.Equal(t, m.SampleCount, latest.SampleCount)

	history, err := repo.GetMetricsHistory(ctx, "B3SA3.SA", time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, history, 1)

	none, err := repo.GetLatestMetrics(ctx, "PETR4.SA")
	require.NoError(t, err)
	assert.Nil(t, none)
}
