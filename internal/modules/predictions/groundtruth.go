package predictions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusml/argus/internal/modules/marketdata"
)

// groundTruthGraceDays is how many calendar days past the target date we
// scan for a close. Markets close for weekends and holidays, so the close
// that settles a target date may be published a few sessions later.
const groundTruthGraceDays = 5

// BarResolver is the slice of the market data resolver the fetcher needs.
type BarResolver interface {
	Resolve(ctx context.Context, ticker string, start, end time.Time) (*marketdata.Result, error)
}

// GroundTruthFetcher resolves the observed close that settles a prediction.
type GroundTruthFetcher struct {
	resolver BarResolver
	log      zerolog.Logger
	now      func() time.Time
}

// NewGroundTruthFetcher creates a new ground truth fetcher
func NewGroundTruthFetcher(resolver BarResolver, log zerolog.Logger) *GroundTruthFetcher {
	return &GroundTruthFetcher{
		resolver: resolver,
		log:      log.With().Str("component", "groundtruth").Logger(),
		now:      time.Now,
	}
}

// FetchClose returns the close for targetDate, or the first close within the
// grace window after it. Returns the close, the provenance of the backend
// that served it, and ErrGroundTruthPending when the market has not yet
// published a usable close.
func (g *GroundTruthFetcher) FetchClose(ctx context.Context, ticker string, targetDate string) (float64, string, error) {
	target, err := time.Parse(DateLayout, targetDate)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidTargetDate, targetDate)
	}

	today, _ := time.Parse(DateLayout, g.now().UTC().Format(DateLayout))
	if target.After(today) {
		return 0, "", fmt.Errorf("%w: target %s is in the future", ErrGroundTruthPending, targetDate)
	}

	windowEnd := target.AddDate(0, 0, groundTruthGraceDays)

	result, err := g.resolver.Resolve(ctx, ticker, target, windowEnd)
	if err != nil {
		// When the grace window has not fully elapsed, an empty market is
		// indistinguishable from a close that is not published yet
		if errors.Is(err, marketdata.ErrDataUnavailable) && !windowEnd.Before(today) {
			return 0, "", fmt.Errorf("%w: no close published for %s yet", ErrGroundTruthPending, targetDate)
		}
		return 0, "", err
	}

	for _, bar := range result.Bars {
		if bar.Date >= targetDate {
			if bar.Date != targetDate {
				g.log.Debug().
					Str("ticker", ticker).
					Str("target_date", targetDate).
					Str("observed_date", bar.Date).
					Msg("Target date had no session, using next close")
			}
			return bar.Close, result.Provenance, nil
		}
	}

	if !windowEnd.Before(today) {
		return 0, "", fmt.Errorf("%w: no close published for %s yet", ErrGroundTruthPending, targetDate)
	}

	// Grace window fully in the past and still no close; treat as pending
	// rather than failing the cycle, a later backfill may surface it
	return 0, "", fmt.Errorf("%w: no close within %d days of %s", ErrGroundTruthPending, groundTruthGraceDays, targetDate)
}
