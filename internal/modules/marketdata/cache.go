package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/argusml/argus/internal/database"
)

// CacheBackend serves bars from the local cache database. It doubles as the
// write-through target: successful fetches from remote backends are stored
// here so subsequent resolutions short-circuit.
//
// Rows are msgpack-encoded and ephemeral. Losing the cache database costs
// nothing but a refetch.
type CacheBackend struct {
	db  *database.DB
	log zerolog.Logger
}

func NewCacheBackend(db *database.DB, log zerolog.Logger) *CacheBackend {
	return &CacheBackend{
		db:  db,
		log: log.With().Str("component", "marketdata_cache").Logger(),
	}
}

func (c *CacheBackend) Name() string { return "cache" }

// FetchBars returns cached bars for ticker in [start, end]. A range with no
// cached rows is a miss and reported as an error so the resolver moves on.
func (c *CacheBackend) FetchBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT payload FROM daily_bars WHERE ticker = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		ticker, start.Format(DateLayout), end.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("cache query failed: %w", err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("cache scan failed: %w", err)
		}
		var bar Bar
		if err := msgpack.Unmarshal(payload, &bar); err != nil {
			// A corrupt row poisons the whole range; let the resolver refetch
			return nil, fmt.Errorf("cache payload decode failed: %w", err)
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache iteration failed: %w", err)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("cache miss for %s [%s, %s]",
			ticker, start.Format(DateLayout), end.Format(DateLayout))
	}

	return bars, nil
}

// Store writes bars into the cache, replacing any existing rows for the same
// (ticker, date). Failures are non-fatal to the caller: the resolver already
// has the data in hand.
func (c *CacheBackend) Store(ctx context.Context, ticker string, bars []Bar) error {
	now := time.Now().UTC().Format(time.RFC3339)

	return database.WithTransaction(c.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO daily_bars (ticker, date, payload, fetched_at) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, bar := range bars {
			payload, err := msgpack.Marshal(bar)
			if err != nil {
				return fmt.Errorf("encode bar %s: %w", bar.Date, err)
			}
			if _, err := stmt.ExecContext(ctx, ticker, bar.Date, payload, now); err != nil {
				return fmt.Errorf("store bar %s: %w", bar.Date, err)
			}
		}
		return nil
	})
}

// Purge removes cache rows fetched before the cutoff. Returns rows deleted.
func (c *CacheBackend) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM daily_bars WHERE fetched_at < ?`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("cache purge failed: %w", err)
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		c.log.Info().Int64("rows", deleted).Msg("Purged stale cache rows")
	}
	return deleted, nil
}
