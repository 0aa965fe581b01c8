// Package marketdata resolves historical OHLCV data from ranked source
// backends with automatic fallback.
package marketdata

import (
	"errors"
	"fmt"
)

// ErrDataUnavailable is returned when every configured backend failed to
// produce valid data. It is fatal to the calling operation and must not be
// silently swallowed.
var ErrDataUnavailable = errors.New("market data unavailable from all backends")

// DateLayout is the wire format for bar dates.
const DateLayout = "2006-01-02"

// Bar represents a single daily OHLCV price point
type Bar struct {
	Date   string  `json:"date" msgpack:"date"`
	Open   float64 `json:"open" msgpack:"open"`
	High   float64 `json:"high" msgpack:"high"`
	Low    float64 `json:"low" msgpack:"low"`
	Close  float64 `json:"close" msgpack:"close"`
	Volume *int64  `json:"volume,omitempty" msgpack:"volume,omitempty"`
}

// SourceOutcome records a single resolution attempt against one backend.
// Outcomes are ephemeral diagnostics: they are logged, never persisted.
type SourceOutcome struct {
	Backend   string  `json:"backend"`
	Attempt   int     `json:"attempt"`
	Success   bool    `json:"success"`
	RowCount  int     `json:"row_count"`
	LatencyMS int64   `json:"latency_ms"`
	Error     *string `json:"error,omitempty"`
}

// Result is the output of a successful resolution: the accepted rows, the
// identity of the backend that supplied them, and the full attempt trail.
type Result struct {
	Bars       []Bar
	Provenance string
	Outcomes   []SourceOutcome
}

// Closes extracts the close price series in date order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func (b Bar) String() string {
	return fmt.Sprintf("%s o=%.2f h=%.2f l=%.2f c=%.2f", b.Date, b.Open, b.High, b.Low, b.Close)
}
