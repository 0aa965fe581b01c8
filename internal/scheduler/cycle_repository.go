package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CycleState tracks how far a monitoring cycle progressed.
type CycleState string

const (
	CycleStarted         CycleState = "started"
	CycleValidationDone  CycleState = "validation_done"
	CycleDriftCheckDone  CycleState = "drift_check_done"
	CycleAlertsEvaluated CycleState = "alerts_evaluated"
	CycleCompleted       CycleState = "completed"
	CycleFailed          CycleState = "failed"
)

// CycleSummary is the persisted record of one monitoring cycle run. Failed
// cycles keep whatever partial results were produced before the failure.
type CycleSummary struct {
	ID             int64             `json:"id"`
	Ticker         string            `json:"ticker"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	State          CycleState        `json:"state"`
	FailedStep     string            `json:"failed_step,omitempty"`
	ValidatedCount int               `json:"validated_count"`
	PendingCount   int               `json:"pending_count"`
	MAPE           *float64          `json:"mape,omitempty"`
	Trend          string            `json:"trend,omitempty"`
	DriftDetected  *bool             `json:"drift_detected,omitempty"`
	DriftSeverity  string            `json:"drift_severity,omitempty"`
	AlertsEmitted  int               `json:"alerts_emitted"`
	Details        map[string]string `json:"details,omitempty"`
}

// CycleRepository persists cycle summaries in monitoring.db.
type CycleRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCycleRepository creates a new cycle summary repository
func NewCycleRepository(db *sql.DB, log zerolog.Logger) *CycleRepository {
	return &CycleRepository{
		db:  db,
		log: log.With().Str("repo", "cycles").Logger(),
	}
}

// Append persists a cycle summary and fills in its generated id.
func (r *CycleRepository) Append(ctx context.Context, s *CycleSummary) error {
	if s.Details == nil {
		s.Details = map[string]string{}
	}
	details, err := json.Marshal(s.Details)
	if err != nil {
		return fmt.Errorf("failed to encode cycle details: %w", err)
	}

	var failedStep interface{}
	if s.FailedStep != "" {
		failedStep = s.FailedStep
	}
	var mape interface{}
	if s.MAPE != nil {
		mape = *s.MAPE
	}
	var trend interface{}
	if s.Trend != "" {
		trend = s.Trend
	}
	var driftDetected interface{}
	if s.DriftDetected != nil {
		if *s.DriftDetected {
			driftDetected = 1
		} else {
			driftDetected = 0
		}
	}
	var driftSeverity interface{}
	if s.DriftSeverity != "" {
		driftSeverity = s.DriftSeverity
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO cycle_summaries (ticker, started_at, finished_at, state, failed_step,
		   validated_count, pending_count, mape, trend, drift_detected, drift_severity,
		   alerts_emitted, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Ticker, s.StartedAt.UTC().Format(time.RFC3339), s.FinishedAt.UTC().Format(time.RFC3339),
		string(s.State), failedStep, s.ValidatedCount, s.PendingCount,
		mape, trend, driftDetected, driftSeverity, s.AlertsEmitted, string(details))
	if err != nil {
		return fmt.Errorf("failed to append cycle summary: %w", err)
	}

	s.ID, _ = res.LastInsertId()
	return nil
}

// GetRecent returns the newest cycle summaries, optionally filtered by
// ticker (empty matches all).
func (r *CycleRepository) GetRecent(ctx context.Context, ticker string, limit int) ([]CycleSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, ticker, started_at, finished_at, state, failed_step,
	   validated_count, pending_count, mape, trend, drift_detected, drift_severity,
	   alerts_emitted, details
	 FROM cycle_summaries`
	args := []interface{}{}
	if ticker != "" {
		query += ` WHERE ticker = ?`
		args = append(args, ticker)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle summaries: %w", err)
	}
	defer rows.Close()

	var out []CycleSummary
	for rows.Next() {
		var s CycleSummary
		var startedAt, finishedAt, state string
		var failedStep, trend, driftSeverity sql.NullString
		var mape sql.NullFloat64
		var driftDetected sql.NullInt64
		var details string

		err := rows.Scan(&s.ID, &s.Ticker, &startedAt, &finishedAt, &state, &failedStep,
			&s.ValidatedCount, &s.PendingCount, &mape, &trend, &driftDetected, &driftSeverity,
			&s.AlertsEmitted, &details)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle summary: %w", err)
		}

		if s.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("malformed started_at %q: %w", startedAt, err)
		}
		if s.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
			return nil, fmt.Errorf("malformed finished_at %q: %w", finishedAt, err)
		}
		s.State = CycleState(state)
		if failedStep.Valid {
			s.FailedStep = failedStep.String
		}
		if mape.Valid {
			s.MAPE = &mape.Float64
		}
		if trend.Valid {
			s.Trend = trend.String
		}
		if driftDetected.Valid {
			v := driftDetected.Int64 != 0
			s.DriftDetected = &v
		}
		if driftSeverity.Valid {
			s.DriftSeverity = driftSeverity.String
		}
		if err := json.Unmarshal([]byte(details), &s.Details); err != nil {
			return nil, fmt.Errorf("malformed cycle details: %w", err)
		}

		out = append(out, s)
	}
	return out, rows.Err()
}
