package twelvedata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(serverURL string) *Client {
	return &Client{
		apiKey:  "test-key",
		baseURL: serverURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 1),
		log:     zerolog.Nop(),
	}
}

func TestGetTimeSeriesParsesAndSortsAscending(t *testing.T) {
	// The API returns newest first with every number as a string
	payload := `{"status":"ok","values":[
		{"datetime":"2025-08-22","open":"37.50","high":"37.90","low":"37.10","close":"37.80","volume":"21000000"},
		{"datetime":"2025-08-21","open":"37.20","high":"37.60","low":"36.90","close":"37.40","volume":"18000000"},
		{"datetime":"2025-08-20","open":"37.00","high":"37.30","low":"36.70","close":"37.10","volume":""}
	]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/time_series", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "1day", r.URL.Query().Get("interval"))
		assert.Equal(t, "2025-08-20", r.URL.Query().Get("start_date"))
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	candles, err := c.GetTimeSeries(context.Background(),
		"PETR4.SA",
		time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 22, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, candles, 3)
	assert.Equal(t, "2025-08-20", candles[0].Date)
	assert.Equal(t, "2025-08-22", candles[2].Date)
	assert.Equal(t, 37.8, candles[2].Close)
	require.NotNil(t, candles[2].Volume)
	assert.Equal(t, int64(21000000), *candles[2].Volume)
	// Empty volume string stays nil rather than zero
	assert.Nil(t, candles[0].Volume)
}

func TestGetTimeSeriesSurfacesErrorStatus(t *testing.T) {
	// Errors arrive with HTTP 200 and status "error"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"symbol not found: NOPE"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetTimeSeries(context.Background(), "NOPE", time.Now().AddDate(0, 0, -5), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol not found")
}

func TestGetTimeSeriesRejectsMalformedNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","values":[
			{"datetime":"2025-08-22","open":"n/a","high":"37.90","low":"37.10","close":"37.80","volume":"0"}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetTimeSeries(context.Background(), "PETR4.SA", time.Now().AddDate(0, 0, -5), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed candle")
}

func TestGetTimeSeriesRequiresAPIKey(t *testing.T) {
	c := NewClient("", zerolog.Nop())
	_, err := c.GetTimeSeries(context.Background(), "PETR4.SA", time.Now().AddDate(0, 0, -5), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}
