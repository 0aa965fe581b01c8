// Package yahoo provides a client for the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client for the unauthenticated Yahoo Finance v8 chart endpoint.
// Requests are rate-limited; Yahoo throttles aggressive callers hard.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://query1.finance.yahoo.com/v8/finance/chart",
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// GetDailyBars fetches daily OHLCV rows for symbol over [start, end].
// Rows with a null close (holidays, halted sessions) are dropped.
func (c *Client) GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]DailyBar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// period2 is exclusive, push it past end-of-day
	params := url.Values{}
	params.Set("period1", fmt.Sprintf("%d", start.Unix()))
	params.Set("period2", fmt.Sprintf("%d", end.Add(24*time.Hour).Unix()))
	params.Set("interval", "1d")
	params.Set("events", "history")

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	// Yahoo rejects the default Go user agent
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API returned status %d for %s", resp.StatusCode, symbol)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %w", err)
	}

	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %s (%s)",
			symbol, parsed.Chart.Error.Description, parsed.Chart.Error.Code)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart API returned no result for %s", symbol)
	}

	result := parsed.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart API returned no quote data for %s", symbol)
	}
	quote := result.Indicators.Quote[0]

	bars := make([]DailyBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil {
			continue
		}
		bar := DailyBar{
			Date:  time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Open:  *quote.Open[i],
			High:  *quote.High[i],
			Low:   *quote.Low[i],
			Close: *quote.Close[i],
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			v := *quote.Volume[i]
			bar.Volume = &v
		}
		bars = append(bars, bar)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("rows", len(bars)).
		Msg("Fetched daily bars")

	return bars, nil
}
