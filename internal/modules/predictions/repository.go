package predictions

// The prediction ledger lives in monitoring.db and is append-only:
// validation fills in the observed columns exactly once, and rows are never
// deleted, only archived.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/argusml/argus/internal/database"
)

// predictionColumns avoids SELECT * so schema changes fail loudly.
// Column order must match scanPrediction.
const predictionColumns = `id, ticker, issued_at, target_date, predicted_value, validated,
observed_value, error_abs, error_pct, validated_at, source_provenance, archived`

// Repository handles prediction persistence in monitoring.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new prediction repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "predictions").Logger(),
	}
}

// Register records a newly issued prediction and returns it with its
// generated id. The target date must parse and fall strictly after the
// issue date.
func (r *Repository) Register(ctx context.Context, ticker string, issuedAt time.Time, targetDate string, predictedValue float64) (*Prediction, error) {
	target, err := time.Parse(DateLayout, targetDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTargetDate, targetDate)
	}

	issuedDay, _ := time.Parse(DateLayout, issuedAt.UTC().Format(DateLayout))
	if !target.After(issuedDay) {
		return nil, fmt.Errorf("%w: %s is not after %s", ErrInvalidTargetDate, targetDate, issuedDay.Format(DateLayout))
	}

	p := &Prediction{
		ID:             uuid.NewString(),
		Ticker:         ticker,
		IssuedAt:       issuedAt.UTC(),
		TargetDate:     targetDate,
		PredictedValue: predictedValue,
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO predictions (id, ticker, issued_at, target_date, predicted_value) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Ticker, p.IssuedAt.Format(time.RFC3339), p.TargetDate, p.PredictedValue)
	if err != nil {
		return nil, fmt.Errorf("failed to register prediction: %w", err)
	}

	r.log.Info().
		Str("id", p.ID).
		Str("ticker", ticker).
		Str("target_date", targetDate).
		Float64("predicted", predictedValue).
		Msg("Registered prediction")

	return p, nil
}

// GetByID returns one prediction or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (*Prediction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE id = ?`, id)

	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction %s: %w", id, err)
	}
	return p, nil
}

// GetPending returns unvalidated, unarchived predictions for ticker whose
// target date is on or before asOf, oldest target first.
func (r *Repository) GetPending(ctx context.Context, ticker string, asOf time.Time) ([]Prediction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		 WHERE ticker = ? AND validated = 0 AND archived = 0 AND target_date <= ?
		 ORDER BY target_date ASC`,
		ticker, asOf.UTC().Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending predictions: %w", err)
	}
	defer rows.Close()

	return collectPredictions(rows)
}

// CountPending counts unvalidated, unarchived predictions for ticker
// regardless of target date.
func (r *Repository) CountPending(ctx context.Context, ticker string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM predictions WHERE ticker = ? AND validated = 0 AND archived = 0`,
		ticker).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending predictions: %w", err)
	}
	return n, nil
}

// MarkValidated records the observed close against a prediction and derives
// its error fields. The operation is idempotent: a prediction that is
// already validated is left untouched and no error is returned.
func (r *Repository) MarkValidated(ctx context.Context, id string, observed float64, provenance string, validatedAt time.Time) error {
	if observed <= 0 {
		return fmt.Errorf("observed value must be positive, got %.4f", observed)
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var predicted float64
		var validated bool
		err := tx.QueryRowContext(ctx,
			`SELECT predicted_value, validated FROM predictions WHERE id = ?`, id).
			Scan(&predicted, &validated)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if validated {
			// Already validated, re-validation must not rewrite history
			return nil
		}

		errorAbs := predicted - observed
		if errorAbs < 0 {
			errorAbs = -errorAbs
		}
		errorPct := errorAbs / observed * 100

		_, err = tx.ExecContext(ctx,
			`UPDATE predictions
			 SET validated = 1, observed_value = ?, error_abs = ?, error_pct = ?,
			     validated_at = ?, source_provenance = ?
			 WHERE id = ? AND validated = 0`,
			observed, errorAbs, errorPct,
			validatedAt.UTC().Format(time.RFC3339), provenance, id)
		return err
	})
}

// GetValidatedSince returns validated predictions for ticker whose
// validation timestamp is on or after since. Rows come back in target
// date order so a late backfill cannot interleave the series; window
// membership downstream is calendar-based, not validation-run based.
func (r *Repository) GetValidatedSince(ctx context.Context, ticker string, since time.Time) ([]Prediction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		 WHERE ticker = ? AND validated = 1 AND archived = 0 AND validated_at >= ?
		 ORDER BY target_date ASC, validated_at ASC`,
		ticker, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query validated predictions: %w", err)
	}
	defer rows.Close()

	return collectPredictions(rows)
}

// GetRecent returns the most recently issued predictions for ticker.
func (r *Repository) GetRecent(ctx context.Context, ticker string, limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		 WHERE ticker = ? AND archived = 0
		 ORDER BY issued_at DESC LIMIT ?`,
		ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent predictions: %w", err)
	}
	defer rows.Close()

	return collectPredictions(rows)
}

// ArchiveOlderThan flags predictions issued before the cutoff so queries and
// metrics skip them. Rows are never deleted.
func (r *Repository) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE predictions SET archived = 1 WHERE archived = 0 AND issued_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to archive predictions: %w", err)
	}
	archived, _ := res.RowsAffected()
	if archived > 0 {
		r.log.Info().Int64("rows", archived).Msg("Archived old predictions")
	}
	return archived, nil
}

// StoreMetrics appends one computed metrics window to daily_metrics.
func (r *Repository) StoreMetrics(ctx context.Context, m *Metrics) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO daily_metrics (ticker, computed_at, window_days, mae, mape, rmse, min_error_pct, max_error_pct, sample_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Ticker, m.ComputedAt.UTC().Format(time.RFC3339), m.WindowDays,
		m.MAE, m.MAPE, m.RMSE, m.MinErrorPct, m.MaxErrorPct, m.SampleCount)
	if err != nil {
		return fmt.Errorf("failed to store metrics: %w", err)
	}
	return nil
}

// GetMetricsHistory returns metrics windows for ticker computed on or after
// since, oldest first.
func (r *Repository) GetMetricsHistory(ctx context.Context, ticker string, since time.Time) ([]Metrics, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ticker, computed_at, window_days, mae, mape, rmse, min_error_pct, max_error_pct, sample_count
		 FROM daily_metrics WHERE ticker = ? AND computed_at >= ?
		 ORDER BY computed_at ASC`,
		ticker, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics history: %w", err)
	}
	defer rows.Close()

	var history []Metrics
	for rows.Next() {
		var m Metrics
		var computedAt string
		if err := rows.Scan(&m.Ticker, &computedAt, &m.WindowDays, &m.MAE, &m.MAPE, &m.RMSE,
			&m.MinErrorPct, &m.MaxErrorPct, &m.SampleCount); err != nil {
			return nil, fmt.Errorf("failed to scan metrics row: %w", err)
		}
		if m.ComputedAt, err = time.Parse(time.RFC3339, computedAt); err != nil {
			return nil, fmt.Errorf("malformed computed_at %q: %w", computedAt, err)
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

// GetLatestMetrics returns the newest metrics window for ticker, or nil when
// none exists yet.
func (r *Repository) GetLatestMetrics(ctx context.Context, ticker string) (*Metrics, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT ticker, computed_at, window_days, mae, mape, rmse, min_error_pct, max_error_pct, sample_count
		 FROM daily_metrics WHERE ticker = ? ORDER BY computed_at DESC LIMIT 1`, ticker)

	var m Metrics
	var computedAt string
	err := row.Scan(&m.Ticker, &computedAt, &m.WindowDays, &m.MAE, &m.MAPE, &m.RMSE,
		&m.MinErrorPct, &m.MaxErrorPct, &m.SampleCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest metrics: %w", err)
	}
	if m.ComputedAt, err = time.Parse(time.RFC3339, computedAt); err != nil {
		return nil, fmt.Errorf("malformed computed_at %q: %w", computedAt, err)
	}
	return &m, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row rowScanner) (*Prediction, error) {
	var p Prediction
	var issuedAt string
	var validated, archived int
	var observed, errorAbs, errorPct sql.NullFloat64
	var validatedAt, provenance sql.NullString

	err := row.Scan(&p.ID, &p.Ticker, &issuedAt, &p.TargetDate, &p.PredictedValue, &validated,
		&observed, &errorAbs, &errorPct, &validatedAt, &provenance, &archived)
	if err != nil {
		return nil, err
	}

	if p.IssuedAt, err = time.Parse(time.RFC3339, issuedAt); err != nil {
		return nil, fmt.Errorf("malformed issued_at %q: %w", issuedAt, err)
	}
	p.Validated = validated != 0
	p.Archived = archived != 0
	if observed.Valid {
		p.ObservedValue = &observed.Float64
	}
	if errorAbs.Valid {
		p.ErrorAbs = &errorAbs.Float64
	}
	if errorPct.Valid {
		p.ErrorPct = &errorPct.Float64
	}
	if provenance.Valid {
		p.SourceProvenance = provenance.String
	}
	if validatedAt.Valid {
		ts, err := time.Parse(time.RFC3339, validatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("malformed validated_at %q: %w", validatedAt.String, err)
		}
		p.ValidatedAt = &ts
	}

	return &p, nil
}

func collectPredictions(rows *sql.Rows) ([]Prediction, error) {
	var out []Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
