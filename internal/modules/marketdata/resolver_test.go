package marketdata

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusml/argus/internal/config"
	"github.com/argusml/argus/internal/database"
)

// scriptedBackend returns a scripted response per call, in call order.
type scriptedBackend struct {
	name  string
	calls int
	fn    func(call int) ([]Bar, error)
}

func (s *scriptedBackend) Name() string { return s.name }

func (s *scriptedBackend) FetchBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	s.calls++
	return s.fn(s.calls)
}

func testResolverConfig() config.ResolverConfig {
	return config.ResolverConfig{
		Priority:       []string{"a", "b"},
		BackendTimeout: time.Second,
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		BackoffCap:     2 * time.Millisecond,
	}
}

func testRange() (time.Time, time.Time) {
	start, _ := time.Parse(DateLayout, "2025-08-01")
	end, _ := time.Parse(DateLayout, "2025-08-29")
	return start, end
}

func TestResolverFallsBackToNextBackend(t *testing.T) {
	goodBars := []Bar{validBar("2025-08-01", 10.50), validBar("2025-08-04", 10.62)}

	failing := &scriptedBackend{name: "a", fn: func(call int) ([]Bar, error) {
		return nil, fmt.Errorf("connection refused")
	}}
	healthy := &scriptedBackend{name: "b", fn: func(call int) ([]Bar, error) {
		return goodBars, nil
	}}

	r := NewResolver([]SourceBackend{failing, healthy}, nil, testResolverConfig(), zerolog.Nop())

	start, end := testRange()
	result, err := r.Resolve(context.Background(), "B3SA3.SA", start, end)
	require.NoError(t, err)

	assert.Equal(t, "b", result.Provenance)
	assert.Equal(t, goodBars, result.Bars)
	assert.Equal(t, 3, failing.calls, "failing backend should use its full retry budget")
	assert.Equal(t, 1, healthy.calls)
	assert.Len(t, result.Outcomes, 4)
	assert.False(t, result.Outcomes[0].Success)
	assert.True(t, result.Outcomes[3].Success)
}

func TestResolverRetriesTransientFailure(t *testing.T) {
	goodBars := []Bar{validBar("2025-08-01", 10.50)}

	flaky := &scriptedBackend{name: "a", fn: func(call int) ([]Bar, error) {
		if call < 3 {
			return nil, fmt.Errorf("timeout")
		}
		return goodBars, nil
	}}

	r := NewResolver([]SourceBackend{flaky}, nil, testResolverConfig(), zerolog.Nop())

	start, end := testRange()
	result, err := r.Resolve(context.Background(), "B3SA3.SA", start, end)
	require.NoError(t, err)

	assert.Equal(t, "a", result.Provenance)
	assert.Equal(t, 3, flaky.calls)
}

func TestResolverAllBackendsExhausted(t *testing.T) {
	failing := func(name string) *scriptedBackend {
		return &scriptedBackend{name: name, fn: func(call int) ([]Bar, error) {
			return nil, fmt.Errorf("unavailable")
		}}
	}

	r := NewResolver([]SourceBackend{failing("a"), failing("b")}, nil, testResolverConfig(), zerolog.Nop())

	start, end := testRange()
	result, err := r.Resolve(context.Background(), "B3SA3.SA", start, end)

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrDataUnavailable))
}

func TestResolverRejectsInvalidBatch(t *testing.T) {
	// Backend a responds fast but with a garbage batch, b is clean
	corrupt := &scriptedBackend{name: "a", fn: func(call int) ([]Bar, error) {
		return []Bar{{Date: "2025-08-01", Open: 10, High: 9, Low: 11, Close: -1}}, nil
	}}
	healthy := &scriptedBackend{name: "b", fn: func(call int) ([]Bar, error) {
		return []Bar{validBar("2025-08-01", 10.50)}, nil
	}}

	r := NewResolver([]SourceBackend{corrupt, healthy}, nil, testResolverConfig(), zerolog.Nop())

	start, end := testRange()
	result, err := r.Resolve(context.Background(), "B3SA3.SA", start, end)
	require.NoError(t, err)

	assert.Equal(t, "b", result.Provenance)
}

func TestResolverCacheMissNotRetried(t *testing.T) {
	miss := &scriptedBackend{name: "cache", fn: func(call int) ([]Bar, error) {
		return nil, fmt.Errorf("cache miss")
	}}
	healthy := &scriptedBackend{name: "b", fn: func(call int) ([]Bar, error) {
		return []Bar{validBar("2025-08-01", 10.50)}, nil
	}}

	r := NewResolver([]SourceBackend{miss, healthy}, nil, testResolverConfig(), zerolog.Nop())

	start, end := testRange()
	result, err := r.Resolve(context.Background(), "B3SA3.SA", start, end)
	require.NoError(t, err)

	assert.Equal(t, 1, miss.calls, "a cache miss is deterministic and should not be retried")
	assert.Equal(t, "b", result.Provenance)
}

func TestResolverWritesThroughToCache(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    "file:resolver_writethrough_test?mode=memory&cache=shared",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	cache := NewCacheBackend(db, zerolog.Nop())
	goodBars := []Bar{validBar("2025-08-01", 10.50), validBar("2025-08-04", 10.62)}

	remote := &scriptedBackend{name: "yahoo", fn: func(call int) ([]Bar, error) {
		return goodBars, nil
	}}

	r := NewResolver([]SourceBackend{cache, remote}, cache, testResolverConfig(), zerolog.Nop())

	start, end := testRange()

	// First resolution misses the cache and lands on the remote
	first, err := r.Resolve(context.Background(), "B3SA3.SA", start, end)
	require.NoError(t, err)
	assert.Equal(t, "yahoo", first.Provenance)

	// Second resolution is served from the cache
	second, err := r.Resolve(context.Background(), "B3SA3.SA", start, end)
	require.NoError(t, err)
	assert.Equal(t, "cache", second.Provenance)
	assert.Equal(t, goodBars, second.Bars)
	assert.Equal(t, 1, remote.calls)
}
