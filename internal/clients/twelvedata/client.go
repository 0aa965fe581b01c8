// Package twelvedata provides a client for the Twelve Data time series API.
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Candle is one daily OHLCV row. Twelve Data serializes every numeric field
// as a string; values here are already parsed.
type Candle struct {
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume *int64
}

type timeSeriesResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Values  []struct {
		Datetime string `json:"datetime"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
	} `json:"values"`
}

// Client for api.twelvedata.com. The free tier allows 8 requests per minute,
// the limiter stays under that.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a new Twelve Data client
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: "https://api.twelvedata.com",
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(8*time.Second), 1),
		log:     log.With().Str("client", "twelvedata").Logger(),
	}
}

// GetTimeSeries fetches daily candles for symbol over [start, end] in
// ascending date order.
func (c *Client) GetTimeSeries(ctx context.Context, symbol string, start, end time.Time) ([]Candle, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("twelvedata API key not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1day")
	params.Set("start_date", start.Format("2006-01-02"))
	params.Set("end_date", end.Format("2006-01-02"))
	params.Set("apikey", c.apiKey)

	reqURL := fmt.Sprintf("%s/time_series?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("time series request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("time series API returned status %d for %s", resp.StatusCode, symbol)
	}

	var parsed timeSeriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse time series response: %w", err)
	}

	// Error payloads come back with HTTP 200 and status "error"
	if parsed.Status == "error" {
		return nil, fmt.Errorf("time series API error for %s: %s", symbol, parsed.Message)
	}
	if len(parsed.Values) == 0 {
		return nil, fmt.Errorf("time series API returned no values for %s", symbol)
	}

	candles := make([]Candle, 0, len(parsed.Values))
	for _, v := range parsed.Values {
		candle, err := parseCandle(v.Datetime, v.Open, v.High, v.Low, v.Close, v.Volume)
		if err != nil {
			return nil, fmt.Errorf("malformed candle for %s at %s: %w", symbol, v.Datetime, err)
		}
		candles = append(candles, candle)
	}

	// API returns newest first
	sort.Slice(candles, func(i, j int) bool { return candles[i].Date < candles[j].Date })

	c.log.Debug().
		Str("symbol", symbol).
		Int("rows", len(candles)).
		Msg("Fetched time series")

	return candles, nil
}

func parseCandle(date, open, high, low, closeP, volume string) (Candle, error) {
	c := Candle{Date: date}

	var err error
	if c.Open, err = strconv.ParseFloat(open, 64); err != nil {
		return c, fmt.Errorf("open: %w", err)
	}
	if c.High, err = strconv.ParseFloat(high, 64); err != nil {
		return c, fmt.Errorf("high: %w", err)
	}
	if c.Low, err = strconv.ParseFloat(low, 64); err != nil {
		return c, fmt.Errorf("low: %w", err)
	}
	if c.Close, err = strconv.ParseFloat(closeP, 64); err != nil {
		return c, fmt.Errorf("close: %w", err)
	}
	if volume != "" {
		if v, err := strconv.ParseInt(volume, 10, 64); err == nil {
			c.Volume = &v
		}
	}

	return c, nil
}
