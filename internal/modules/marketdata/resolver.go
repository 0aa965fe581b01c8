package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/argusml/argus/internal/config"
)

// Resolver walks the configured backends in priority order until one returns
// a batch that passes validation. Resolution never mutates monitoring state;
// the only side effects are cache writes and log lines.
type Resolver struct {
	backends []SourceBackend
	cache    *CacheBackend
	cfg      config.ResolverConfig
	log      zerolog.Logger
}

// NewResolver creates a resolver over backends, already sorted by priority.
// cache is the write-through target for remote fetches; it may be nil.
func NewResolver(backends []SourceBackend, cache *CacheBackend, cfg config.ResolverConfig, log zerolog.Logger) *Resolver {
	return &Resolver{
		backends: backends,
		cache:    cache,
		cfg:      cfg,
		log:      log.With().Str("component", "marketdata_resolver").Logger(),
	}
}

// Resolve fetches daily bars for ticker over [start, end]. Each backend gets
// a bounded retry budget; a batch failing validation counts as a failed
// attempt. When every backend is exhausted the error wraps ErrDataUnavailable.
func (r *Resolver) Resolve(ctx context.Context, ticker string, start, end time.Time) (*Result, error) {
	var outcomes []SourceOutcome

	for _, backend := range r.backends {
		bars, backendOutcomes := r.tryBackend(ctx, backend, ticker, start, end)
		outcomes = append(outcomes, backendOutcomes...)

		if bars != nil {
			r.log.Info().
				Str("ticker", ticker).
				Str("provenance", backend.Name()).
				Int("rows", len(bars)).
				Int("attempts", len(outcomes)).
				Msg("Resolved market data")

			r.writeThrough(ctx, backend, ticker, bars)

			return &Result{Bars: bars, Provenance: backend.Name(), Outcomes: outcomes}, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("resolution cancelled for %s: %w", ticker, ctx.Err())
		}

		r.log.Warn().
			Str("ticker", ticker).
			Str("backend", backend.Name()).
			Msg("Backend exhausted, falling back")
	}

	for _, o := range outcomes {
		errMsg := ""
		if o.Error != nil {
			errMsg = *o.Error
		}
		r.log.Error().
			Str("ticker", ticker).
			Str("backend", o.Backend).
			Int("attempt", o.Attempt).
			Int64("latency_ms", o.LatencyMS).
			Str("error", errMsg).
			Msg("Resolution attempt failed")
	}

	return nil, fmt.Errorf("%w: %s [%s, %s]", ErrDataUnavailable,
		ticker, start.Format(DateLayout), end.Format(DateLayout))
}

// tryBackend runs one backend through its retry budget. Returns the accepted
// bars, or nil with the attempt trail when the budget is spent.
func (r *Resolver) tryBackend(ctx context.Context, backend SourceBackend, ticker string, start, end time.Time) ([]Bar, []SourceOutcome) {
	var outcomes []SourceOutcome
	var bars []Bar
	attempt := 0

	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.BackendTimeout)
		defer cancel()

		started := time.Now()
		fetched, err := backend.FetchBars(attemptCtx, ticker, start, end)
		if err == nil {
			err = ValidateBars(fetched)
		}
		latency := time.Since(started).Milliseconds()

		if err != nil {
			msg := err.Error()
			outcomes = append(outcomes, SourceOutcome{
				Backend:   backend.Name(),
				Attempt:   attempt,
				Success:   false,
				LatencyMS: latency,
				Error:     &msg,
			})
			// A cache miss is deterministic, retrying it buys nothing
			if backend.Name() == "cache" {
				return backoff.Permanent(err)
			}
			return err
		}

		outcomes = append(outcomes, SourceOutcome{
			Backend:   backend.Name(),
			Attempt:   attempt,
			Success:   true,
			RowCount:  len(fetched),
			LatencyMS: latency,
		})
		bars = fetched
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.BackoffBase
	bo.MaxInterval = r.cfg.BackoffCap
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, outcomes
	}

	return bars, outcomes
}

// writeThrough stores remote fetches in the cache. Failures are logged and
// swallowed: the caller already holds the data.
func (r *Resolver) writeThrough(ctx context.Context, backend SourceBackend, ticker string, bars []Bar) {
	if r.cache == nil || backend.Name() == r.cache.Name() {
		return
	}
	if err := r.cache.Store(ctx, ticker, bars); err != nil {
		r.log.Warn().Err(err).Str("ticker", ticker).Msg("Cache write-through failed")
	}
}
