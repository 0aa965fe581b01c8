package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository handles alert event persistence in monitoring.db. Events are
// append-only.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new alert repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "alerts").Logger(),
	}
}

// Append persists an alert event and fills in its generated id and
// timestamp.
func (r *Repository) Append(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}

	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode alert metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO alert_events (id, created_at, type, severity, message, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UTC().Format(time.RFC3339), string(e.Type), string(e.Severity), e.Message, string(metadata))
	if err != nil {
		return fmt.Errorf("failed to append alert event: %w", err)
	}

	return nil
}

// GetSince returns alert events created on or after since, newest first.
func (r *Repository) GetSince(ctx context.Context, since time.Time) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, type, severity, message, metadata
		 FROM alert_events WHERE created_at >= ? ORDER BY created_at DESC`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var createdAt, alertType, severity, metadata string
		if err := rows.Scan(&e.ID, &createdAt, &alertType, &severity, &e.Message, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("malformed created_at %q: %w", createdAt, err)
		}
		e.Type = AlertType(alertType)
		e.Severity = AlertSeverity(severity)
		if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
			return nil, fmt.Errorf("malformed alert metadata: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
