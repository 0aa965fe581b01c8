package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusml/argus/internal/config"
	"github.com/argusml/argus/internal/modules/drift"
	"github.com/argusml/argus/internal/modules/predictions"
)

// Evaluator checks monitoring results against thresholds and emits alert
// events. Checks return violations as data; Emit persists and dispatches.
type Evaluator struct {
	repo       *Repository
	thresholds config.ThresholdsConfig
	channels   []Channel
	log        zerolog.Logger
}

// NewEvaluator creates a new alert evaluator
func NewEvaluator(repo *Repository, thresholds config.ThresholdsConfig, channels []Channel, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		repo:       repo,
		thresholds: thresholds,
		channels:   channels,
		log:        log.With().Str("component", "alert_evaluator").Logger(),
	}
}

// CheckPerformance compares one metrics window against the accuracy
// thresholds.
func (e *Evaluator) CheckPerformance(m *predictions.Metrics) []Violation {
	var violations []Violation

	if m.MAPE > e.thresholds.MAPE {
		violations = append(violations, Violation{
			Type:     TypePerformance,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("%s: MAPE %.2f%% exceeds threshold %.2f%%",
				m.Ticker, m.MAPE, e.thresholds.MAPE),
			Metadata: map[string]string{
				"ticker":    m.Ticker,
				"mape":      fmt.Sprintf("%.4f", m.MAPE),
				"threshold": fmt.Sprintf("%.4f", e.thresholds.MAPE),
			},
		})
	}

	if m.MAE > e.thresholds.MAE {
		violations = append(violations, Violation{
			Type:     TypePerformance,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("%s: MAE %.4f exceeds threshold %.4f",
				m.Ticker, m.MAE, e.thresholds.MAE),
			Metadata: map[string]string{
				"ticker":    m.Ticker,
				"mae":       fmt.Sprintf("%.4f", m.MAE),
				"threshold": fmt.Sprintf("%.4f", e.thresholds.MAE),
			},
		})
	}

	return violations
}

// CheckDrift turns a drift report into violations. Severity maps from the
// report grade: high drift is critical, everything else warns.
func (e *Evaluator) CheckDrift(rep *drift.Report) []Violation {
	if !rep.DriftDetected {
		return nil
	}

	severity := SeverityWarning
	if rep.Severity == drift.SeverityHigh {
		severity = SeverityCritical
	}

	return []Violation{{
		Type:     TypeDrift,
		Severity: severity,
		Message: fmt.Sprintf("%s: prediction error drift detected (%s, %s mode)",
			rep.Ticker, rep.Severity, rep.Mode),
		Metadata: map[string]string{
			"ticker":         rep.Ticker,
			"drift_severity": string(rep.Severity),
			"mode":           string(rep.Mode),
			"mean_diff_pct":  fmt.Sprintf("%.2f", rep.MeanDiffPct),
		},
	}}
}

// CheckDriftRate flags a fleet-wide problem when too many recent drift
// checks came back positive.
func (e *Evaluator) CheckDriftRate(s *drift.Summary) []Violation {
	if s.TotalReports == 0 || s.DriftRatePct <= e.thresholds.DriftRatePct {
		return nil
	}

	return []Violation{{
		Type:     TypeDrift,
		Severity: SeverityCritical,
		Message: fmt.Sprintf("drift rate %.1f%% over last %d days exceeds %.1f%%",
			s.DriftRatePct, s.Days, e.thresholds.DriftRatePct),
		Metadata: map[string]string{
			"drift_rate_pct": fmt.Sprintf("%.2f", s.DriftRatePct),
			"total_reports":  fmt.Sprintf("%d", s.TotalReports),
			"drift_count":    fmt.Sprintf("%d", s.DriftCount),
		},
	}}
}

// Emit persists each violation as an alert event, then dispatches it to
// every channel. Persistence is the source of truth: a channel failure is
// logged and swallowed, never propagated.
func (e *Evaluator) Emit(ctx context.Context, violations []Violation) (int, error) {
	emitted := 0

	for _, v := range violations {
		event := &Event{
			CreatedAt: time.Now().UTC(),
			Type:      v.Type,
			Severity:  v.Severity,
			Message:   v.Message,
			Metadata:  v.Metadata,
		}

		if err := e.repo.Append(ctx, event); err != nil {
			return emitted, fmt.Errorf("failed to persist alert: %w", err)
		}
		emitted++

		for _, ch := range e.channels {
			if err := ch.Send(ctx, event); err != nil {
				e.log.Warn().
					Err(err).
					Str("channel", ch.Name()).
					Str("alert_id", event.ID).
					Msg("Alert dispatch failed")
			}
		}
	}

	return emitted, nil
}

// GetRecent returns alert events from the last hours, newest first.
func (e *Evaluator) GetRecent(ctx context.Context, hours int) ([]Event, error) {
	return e.repo.GetSince(ctx, time.Now().Add(-time.Duration(hours)*time.Hour))
}

// GetSummary aggregates alert events from the last hours.
func (e *Evaluator) GetSummary(ctx context.Context, hours int) (*Summary, error) {
	events, err := e.GetRecent(ctx, hours)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Hours:      hours,
		Total:      len(events),
		BySeverity: map[string]int{},
		ByType:     map[string]int{},
	}
	for _, ev := range events {
		summary.BySeverity[string(ev.Severity)]++
		summary.ByType[string(ev.Type)]++
	}

	return summary, nil
}
