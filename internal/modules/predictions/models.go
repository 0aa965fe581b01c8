// Package predictions tracks issued price predictions through their
// validation lifecycle and computes rolling accuracy metrics.
package predictions

import (
	"errors"
	"time"
)

var (
	// ErrInvalidTargetDate is returned when a registration's target date is
	// malformed or not strictly after the issue date.
	ErrInvalidTargetDate = errors.New("target date must be a valid date after the issue date")

	// ErrNotFound is returned when a prediction id does not exist.
	ErrNotFound = errors.New("prediction not found")

	// ErrInsufficientData is returned when a metrics window holds fewer
	// validated predictions than the configured minimum.
	ErrInsufficientData = errors.New("not enough validated predictions in window")

	// ErrGroundTruthPending means the market has not yet published a close
	// for the target date. The prediction simply stays pending.
	ErrGroundTruthPending = errors.New("ground truth not yet available")
)

// Prediction is a single issued prediction. Validation fields are nil until
// the observed close is known.
type Prediction struct {
	ID               string     `json:"id"`
	Ticker           string     `json:"ticker"`
	IssuedAt         time.Time  `json:"issued_at"`
	TargetDate       string     `json:"target_date"`
	PredictedValue   float64    `json:"predicted_value"`
	Validated        bool       `json:"validated"`
	ObservedValue    *float64   `json:"observed_value,omitempty"`
	ErrorAbs         *float64   `json:"error_abs,omitempty"`
	ErrorPct         *float64   `json:"error_pct,omitempty"`
	ValidatedAt      *time.Time `json:"validated_at,omitempty"`
	SourceProvenance string     `json:"source_provenance,omitempty"`
	Archived         bool       `json:"archived"`
}

// Metrics is one computed accuracy window over validated predictions.
type Metrics struct {
	Ticker      string    `json:"ticker"`
	ComputedAt  time.Time `json:"computed_at"`
	WindowDays  int       `json:"window_days"`
	MAE         float64   `json:"mae"`
	MAPE        float64   `json:"mape"`
	RMSE        float64   `json:"rmse"`
	MinErrorPct float64   `json:"min_error_pct"`
	MaxErrorPct float64   `json:"max_error_pct"`
	SampleCount int       `json:"sample_count"`
}

// Trend classifies the direction of recent accuracy.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
	// TrendUnknown is reported when the history is too short to classify
	TrendUnknown Trend = "unknown"
)

// TrendResult carries the trend classification together with the MAPE
// figures behind it: the oldest-third mean, the newest-third mean, and
// the mean over the whole history.
type TrendResult struct {
	Trend       Trend   `json:"trend"`
	InitialMAPE float64 `json:"initial_mape"`
	FinalMAPE   float64 `json:"final_mape"`
	AverageMAPE float64 `json:"average_mape"`
	SampleCount int     `json:"sample_count"`
}

// Degradation is the result of checking recent accuracy against a MAPE
// threshold. Slope is the per-snapshot MAPE change from a linear fit over
// the history, positive when accuracy is getting worse.
type Degradation struct {
	Degraded    bool    `json:"degraded"`
	LatestMAPE  float64 `json:"latest_mape"`
	Threshold   float64 `json:"threshold"`
	Slope       float64 `json:"slope"`
	SampleCount int     `json:"sample_count"`
}

// DateLayout is the wire format for target dates.
const DateLayout = "2006-01-02"
