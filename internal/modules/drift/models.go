// Package drift detects shifts in the prediction error distribution, either
// against a sliding window of recent history or against a frozen baseline
// profile.
package drift

import (
	"errors"
	"time"
)

// ErrInsufficientData is returned when a window holds too few samples for a
// meaningful comparison.
var ErrInsufficientData = errors.New("not enough samples for drift detection")

// ErrNoProfile is returned in baseline mode when no reference profile has
// been frozen for the ticker.
var ErrNoProfile = errors.New("no reference profile for ticker")

// Mode selects how the reference distribution is built.
type Mode string

const (
	// ModeSliding compares a recent window against the window before it
	ModeSliding Mode = "sliding"
	// ModeBaseline compares recent samples against a frozen profile
	ModeBaseline Mode = "baseline"
)

// Severity grades a drift report.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Sample is one dated observation of the monitored quantity, typically the
// percentage error of a validated prediction.
type Sample struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Profile is a frozen statistical snapshot of the error distribution,
// captured during a known-good period.
type Profile struct {
	Ticker      string    `json:"ticker"`
	ComputedAt  time.Time `json:"computed_at"`
	SampleCount int       `json:"sample_count"`
	Mean        float64   `json:"mean"`
	Std         float64   `json:"std"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Median      float64   `json:"median"`
	Q1          float64   `json:"q1"`
	Q3          float64   `json:"q3"`
	IQR         float64   `json:"iqr"`
}

// WindowStats summarizes one side of a drift comparison.
type WindowStats struct {
	Start   string  `json:"start"`
	End     string  `json:"end"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Samples int     `json:"samples"`
}

// Report is one persisted drift comparison.
type Report struct {
	ID            int64       `json:"id"`
	Ticker        string      `json:"ticker"`
	ComputedAt    time.Time   `json:"computed_at"`
	WindowName    string      `json:"window_name"`
	Mode          Mode        `json:"mode"`
	Current       WindowStats `json:"current"`
	Reference     WindowStats `json:"reference"`
	MeanDiffPct   float64     `json:"mean_diff_pct"`
	StdDiffPct    float64     `json:"std_diff_pct"`
	KSStatistic   *float64    `json:"ks_statistic,omitempty"`
	KSPValue      *float64    `json:"ks_p_value,omitempty"`
	DriftDetected bool        `json:"drift_detected"`
	Severity      Severity    `json:"severity"`
	Alerts        []string    `json:"alerts"`
}

// Summary aggregates recent drift reports for operators and the alert
// evaluator.
type Summary struct {
	Days          int            `json:"days"`
	TotalReports  int            `json:"total_reports"`
	DriftCount    int            `json:"drift_count"`
	DriftRatePct  float64        `json:"drift_rate_pct"`
	BySeverity    map[string]int `json:"by_severity"`
	LatestDrifted *Report        `json:"latest_drifted,omitempty"`
}

// DistributionAnalysis describes the shape of a sample set, with outliers
// flagged by the 1.5 IQR fence rule.
type DistributionAnalysis struct {
	SampleCount int       `json:"sample_count"`
	Mean        float64   `json:"mean"`
	Std         float64   `json:"std"`
	Median      float64   `json:"median"`
	Q1          float64   `json:"q1"`
	Q3          float64   `json:"q3"`
	IQR         float64   `json:"iqr"`
	LowerFence  float64   `json:"lower_fence"`
	UpperFence  float64   `json:"upper_fence"`
	Outliers    []float64 `json:"outliers"`
}
