package marketdata

import (
	"context"
	"time"
)

// SourceBackend is the uniform contract for a market data source.
// Implementations must honor ctx cancellation and return their rows in
// ascending date order.
type SourceBackend interface {
	// Name identifies the backend in provenance tags and outcome logs
	Name() string
	// FetchBars returns daily OHLCV rows for ticker over [start, end]
	FetchBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error)
}
