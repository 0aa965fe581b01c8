package drift

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const reportColumns = `id, ticker, computed_at, window_name, mode,
cur_start, cur_end, cur_mean, cur_std, cur_samples,
ref_start, ref_end, ref_mean, ref_std, ref_samples,
mean_diff_pct, std_diff_pct, ks_statistic, ks_p_value, drift_detected, severity, alerts`

// Repository handles reference profiles and drift reports in monitoring.db.
// Profiles are upserted (one per ticker), reports are append-only.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new drift repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "drift").Logger(),
	}
}

// UpsertProfile stores or replaces the reference profile for a ticker.
func (r *Repository) UpsertProfile(ctx context.Context, p *Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reference_profiles (ticker, computed_at, sample_count, mean, std, min, max, median, q1, q3, iqr)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ticker) DO UPDATE SET
		   computed_at = excluded.computed_at,
		   sample_count = excluded.sample_count,
		   mean = excluded.mean,
		   std = excluded.std,
		   min = excluded.min,
		   max = excluded.max,
		   median = excluded.median,
		   q1 = excluded.q1,
		   q3 = excluded.q3,
		   iqr = excluded.iqr`,
		p.Ticker, p.ComputedAt.UTC().Format(time.RFC3339), p.SampleCount,
		p.Mean, p.Std, p.Min, p.Max, p.Median, p.Q1, p.Q3, p.IQR)
	if err != nil {
		return fmt.Errorf("failed to upsert reference profile: %w", err)
	}

	r.log.Info().
		Str("ticker", p.Ticker).
		Int("samples", p.SampleCount).
		Float64("mean", p.Mean).
		Float64("std", p.Std).
		Msg("Stored reference profile")

	return nil
}

// GetProfile returns the reference profile for ticker or ErrNoProfile.
func (r *Repository) GetProfile(ctx context.Context, ticker string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT ticker, computed_at, sample_count, mean, std, min, max, median, q1, q3, iqr
		 FROM reference_profiles WHERE ticker = ?`, ticker)

	var p Profile
	var computedAt string
	err := row.Scan(&p.Ticker, &computedAt, &p.SampleCount, &p.Mean, &p.Std,
		&p.Min, &p.Max, &p.Median, &p.Q1, &p.Q3, &p.IQR)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoProfile, ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reference profile: %w", err)
	}
	if p.ComputedAt, err = time.Parse(time.RFC3339, computedAt); err != nil {
		return nil, fmt.Errorf("malformed computed_at %q: %w", computedAt, err)
	}
	return &p, nil
}

// AppendReport persists a drift report and fills in its generated id.
func (r *Repository) AppendReport(ctx context.Context, rep *Report) error {
	alerts, err := json.Marshal(rep.Alerts)
	if err != nil {
		return fmt.Errorf("failed to encode report alerts: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO drift_reports (ticker, computed_at, window_name, mode,
		   cur_start, cur_end, cur_mean, cur_std, cur_samples,
		   ref_start, ref_end, ref_mean, ref_std, ref_samples,
		   mean_diff_pct, std_diff_pct, ks_statistic, ks_p_value, drift_detected, severity, alerts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.Ticker, rep.ComputedAt.UTC().Format(time.RFC3339), rep.WindowName, string(rep.Mode),
		rep.Current.Start, rep.Current.End, rep.Current.Mean, rep.Current.Std, rep.Current.Samples,
		rep.Reference.Start, rep.Reference.End, rep.Reference.Mean, rep.Reference.Std, rep.Reference.Samples,
		rep.MeanDiffPct, rep.StdDiffPct, nullableFloat(rep.KSStatistic), nullableFloat(rep.KSPValue),
		boolToInt(rep.DriftDetected), string(rep.Severity), string(alerts))
	if err != nil {
		return fmt.Errorf("failed to append drift report: %w", err)
	}

	rep.ID, _ = res.LastInsertId()
	return nil
}

// GetReportsSince returns reports for ticker computed on or after since,
// oldest first.
func (r *Repository) GetReportsSince(ctx context.Context, ticker string, since time.Time) ([]Report, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM drift_reports
		 WHERE ticker = ? AND computed_at >= ? ORDER BY computed_at ASC`,
		ticker, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query drift reports: %w", err)
	}
	defer rows.Close()

	return collectReports(rows)
}

// GetAllReportsSince returns reports across all tickers computed on or after
// since, oldest first.
func (r *Repository) GetAllReportsSince(ctx context.Context, since time.Time) ([]Report, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM drift_reports
		 WHERE computed_at >= ? ORDER BY computed_at ASC`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query drift reports: %w", err)
	}
	defer rows.Close()

	return collectReports(rows)
}

// GetLatestReport returns the newest report for ticker, or nil when none
// exists yet.
func (r *Repository) GetLatestReport(ctx context.Context, ticker string) (*Report, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM drift_reports
		 WHERE ticker = ? ORDER BY computed_at DESC LIMIT 1`, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest drift report: %w", err)
	}
	defer rows.Close()

	reports, err := collectReports(rows)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

func collectReports(rows *sql.Rows) ([]Report, error) {
	var out []Report
	for rows.Next() {
		var rep Report
		var computedAt, mode, severity, alerts string
		var ksStat, ksP sql.NullFloat64
		var detected int

		err := rows.Scan(&rep.ID, &rep.Ticker, &computedAt, &rep.WindowName, &mode,
			&rep.Current.Start, &rep.Current.End, &rep.Current.Mean, &rep.Current.Std, &rep.Current.Samples,
			&rep.Reference.Start, &rep.Reference.End, &rep.Reference.Mean, &rep.Reference.Std, &rep.Reference.Samples,
			&rep.MeanDiffPct, &rep.StdDiffPct, &ksStat, &ksP, &detected, &severity, &alerts)
		if err != nil {
			return nil, fmt.Errorf("failed to scan drift report: %w", err)
		}

		if rep.ComputedAt, err = time.Parse(time.RFC3339, computedAt); err != nil {
			return nil, fmt.Errorf("malformed computed_at %q: %w", computedAt, err)
		}
		rep.Mode = Mode(mode)
		rep.Severity = Severity(severity)
		rep.DriftDetected = detected != 0
		if ksStat.Valid {
			rep.KSStatistic = &ksStat.Float64
		}
		if ksP.Valid {
			rep.KSPValue = &ksP.Float64
		}
		if err := json.Unmarshal([]byte(alerts), &rep.Alerts); err != nil {
			return nil, fmt.Errorf("malformed report alerts: %w", err)
		}

		out = append(out, rep)
	}
	return out, rows.Err()
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
