// Package alerts evaluates monitoring results against operator thresholds
// and records the events that cross them.
package alerts

import "time"

// AlertType classifies what tripped the alert.
type AlertType string

const (
	TypePerformance AlertType = "performance"
	TypeDrift       AlertType = "drift"
	TypeError       AlertType = "error"
)

// AlertSeverity grades an alert event.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Event is one persisted alert occurrence.
type Event struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Type      AlertType         `json:"type"`
	Severity  AlertSeverity     `json:"severity"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Violation is one threshold breach found during evaluation. Violations are
// data: evaluation never dispatches anything itself.
type Violation struct {
	Type     AlertType     `json:"type"`
	Severity AlertSeverity `json:"severity"`
	Message  string        `json:"message"`
	Metadata map[string]string
}

// Summary aggregates recent alert events.
type Summary struct {
	Hours      int            `json:"hours"`
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
}
