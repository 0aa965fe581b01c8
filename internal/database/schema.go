package database

// schemas maps database names to their embedded schema definitions.
// All timestamps are stored as ISO-8601 TEXT so lexicographic comparison
// matches chronological order.
var schemas = map[string]string{
	"monitoring": monitoringSchema,
	"cache":      cacheSchema,
}

const monitoringSchema = `
CREATE TABLE IF NOT EXISTS predictions (
    id                TEXT PRIMARY KEY,
    ticker            TEXT NOT NULL,
    issued_at         TEXT NOT NULL,
    target_date       TEXT NOT NULL,
    predicted_value   REAL NOT NULL,
    validated         INTEGER NOT NULL DEFAULT 0,
    observed_value    REAL,
    error_abs         REAL,
    error_pct         REAL,
    validated_at      TEXT,
    source_provenance TEXT NOT NULL DEFAULT '',
    archived          INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_predictions_ticker_validated
    ON predictions(ticker, validated);
CREATE INDEX IF NOT EXISTS idx_predictions_target_date
    ON predictions(target_date);

CREATE TABLE IF NOT EXISTS daily_metrics (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    ticker        TEXT NOT NULL,
    computed_at   TEXT NOT NULL,
    window_days   INTEGER NOT NULL,
    mae           REAL NOT NULL,
    mape          REAL NOT NULL,
    rmse          REAL NOT NULL,
    min_error_pct REAL NOT NULL,
    max_error_pct REAL NOT NULL,
    sample_count  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_daily_metrics_ticker_computed
    ON daily_metrics(ticker, computed_at);

CREATE TABLE IF NOT EXISTS reference_profiles (
    ticker       TEXT PRIMARY KEY,
    computed_at  TEXT NOT NULL,
    sample_count INTEGER NOT NULL,
    mean         REAL NOT NULL,
    std          REAL NOT NULL,
    min          REAL NOT NULL,
    max          REAL NOT NULL,
    median       REAL NOT NULL,
    q1           REAL NOT NULL,
    q3           REAL NOT NULL,
    iqr          REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS drift_reports (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    ticker        TEXT NOT NULL,
    computed_at   TEXT NOT NULL,
    window_name   TEXT NOT NULL,
    mode          TEXT NOT NULL,
    cur_start     TEXT NOT NULL,
    cur_end       TEXT NOT NULL,
    cur_mean      REAL NOT NULL,
    cur_std       REAL NOT NULL,
    cur_samples   INTEGER NOT NULL,
    ref_start     TEXT NOT NULL,
    ref_end       TEXT NOT NULL,
    ref_mean      REAL NOT NULL,
    ref_std       REAL NOT NULL,
    ref_samples   INTEGER NOT NULL,
    mean_diff_pct REAL NOT NULL,
    std_diff_pct  REAL NOT NULL,
    ks_statistic  REAL,
    ks_p_value    REAL,
    drift_detected INTEGER NOT NULL,
    severity      TEXT NOT NULL,
    alerts        TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_drift_reports_ticker_computed
    ON drift_reports(ticker, computed_at);

CREATE TABLE IF NOT EXISTS alert_events (
    id         TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    type       TEXT NOT NULL,
    severity   TEXT NOT NULL,
    message    TEXT NOT NULL,
    metadata   TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_alert_events_created
    ON alert_events(created_at);

CREATE TABLE IF NOT EXISTS cycle_summaries (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    ticker          TEXT NOT NULL,
    started_at      TEXT NOT NULL,
    finished_at     TEXT NOT NULL,
    state           TEXT NOT NULL,
    failed_step     TEXT,
    validated_count INTEGER NOT NULL DEFAULT 0,
    pending_count   INTEGER NOT NULL DEFAULT 0,
    mape            REAL,
    trend           TEXT,
    drift_detected  INTEGER,
    drift_severity  TEXT,
    alerts_emitted  INTEGER NOT NULL DEFAULT 0,
    details         TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_cycle_summaries_ticker_started
    ON cycle_summaries(ticker, started_at);
`

const cacheSchema = `
CREATE TABLE IF NOT EXISTS daily_bars (
    ticker     TEXT NOT NULL,
    date       TEXT NOT NULL,
    payload    BLOB NOT NULL,
    fetched_at TEXT NOT NULL,
    PRIMARY KEY (ticker, date)
);
`
