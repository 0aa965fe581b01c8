package marketdata

import (
	"context"
	"time"

	"github.com/argusml/argus/internal/clients/twelvedata"
	"github.com/argusml/argus/internal/clients/yahoo"
)

// YahooBackend adapts the Yahoo Finance client to the SourceBackend contract.
type YahooBackend struct {
	client *yahoo.Client
}

func NewYahooBackend(client *yahoo.Client) *YahooBackend {
	return &YahooBackend{client: client}
}

func (b *YahooBackend) Name() string { return "yahoo" }

func (b *YahooBackend) FetchBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	rows, err := b.client.GetDailyBars(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	bars := make([]Bar, len(rows))
	for i, r := range rows {
		bars[i] = Bar{
			Date:   r.Date,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars, nil
}

// TwelveDataBackend adapts the Twelve Data client to the SourceBackend contract.
type TwelveDataBackend struct {
	client *twelvedata.Client
}

func NewTwelveDataBackend(client *twelvedata.Client) *TwelveDataBackend {
	return &TwelveDataBackend{client: client}
}

func (b *TwelveDataBackend) Name() string { return "twelvedata" }

func (b *TwelveDataBackend) FetchBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	candles, err := b.client.GetTimeSeries(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	bars := make([]Bar, len(candles))
	for i, c := range candles {
		bars[i] = Bar{
			Date:   c.Date,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		}
	}
	return bars, nil
}
