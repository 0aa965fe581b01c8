package predictions

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusml/argus/internal/modules/marketdata"
)

func newTestFetcher(resolver BarResolver) *GroundTruthFetcher {
	f := NewGroundTruthFetcher(resolver, zerolog.Nop())
	f.now = fixedNow // 2025-08-25
	return f
}

func TestFetchCloseExactTargetDate(t *testing.T) {
	fetcher := newTestFetcher(&fakeResolver{bars: []marketdata.Bar{
		{Date: "2025-08-20", Open: 101, High: 103, Low: 100, Close: 102},
	}})

	close, provenance, err := fetcher.FetchClose(context.Background(), "B3SA3.SA", "2025-08-20")
	require.NoError(t, err)
	assert.Equal(t, 102.0, close)
	assert.Equal(t, "yahoo", provenance)
}

func TestFetchCloseSkipsToNextSession(t *testing.T) {
	// Target falls on a Saturday, first close is Monday's
	fetcher := newTestFetcher(&fakeResolver{bars: []marketdata.Bar{
		{Date: "2025-08-18", Open: 101, High: 103, Low: 100, Close: 101.5},
	}})

	close, _, err := fetcher.FetchClose(context.Background(), "B3SA3.SA", "2025-08-16")
	require.NoError(t, err)
	assert.Equal(t, 101.5, close)
}

func TestFetchCloseFutureTargetIsPending(t *testing.T) {
	fetcher := newTestFetcher(&fakeResolver{})

	_, _, err := fetcher.FetchClose(context.Background(), "B3SA3.SA", "2025-09-10")
	assert.True(t, errors.Is(err, ErrGroundTruthPending))
}

func TestFetchCloseUnpublishedRecentTargetIsPending(t *testing.T) {
	// Target was yesterday; backends have nothing yet but the grace window
	// is still open, so this is pending rather than a hard failure
	fetcher := newTestFetcher(&fakeResolver{})

	_, _, err := fetcher.FetchClose(context.Background(), "B3SA3.SA", "2025-08-24")
	assert.True(t, errors.Is(err, ErrGroundTruthPending))
}

func TestFetchCloseResolverOutageIsFatalForOldTargets(t *testing.T) {
	// Grace window fully elapsed, unavailability is a real failure
	fetcher := newTestFetcher(&fakeResolver{err: marketdata.ErrDataUnavailable})

	_, _, err := fetcher.FetchClose(context.Background(), "B3SA3.SA", "2025-07-01")
	assert.True(t, errors.Is(err, marketdata.ErrDataUnavailable))
	assert.False(t, errors.Is(err, ErrGroundTruthPending))
}

func TestFetchCloseMalformedDate(t *testing.T) {
	fetcher := newTestFetcher(&fakeResolver{})

	_, _, err := fetcher.FetchClose(context.Background(), "B3SA3.SA", "01/07/2025")
	assert.True(t, errors.Is(err, ErrInvalidTargetDate))
}
