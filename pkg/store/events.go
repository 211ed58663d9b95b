package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
)

// IngestionEvent is one append-only row of the ingestion_events table.
type IngestionEvent struct {
	ID        string
	Timestamp time.Time
	EventType string
	StageName string
	Message   string
	Details   map[string]any
}

// LogEvent appends a best-effort ingestion_events row. A failure here is
// logged at Warn and swallowed — never raised to the caller, per spec.md
// §4.B and the Open Question in §9 ("best-effort logger may lose rows on
// store failure; intentional, no secondary durable channel").
func (s *Store) LogEvent(ctx context.Context, eventType, stageName, message string, details map[string]any) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		level.Warn(s.logger).Log("msg", "failed to marshal event details", "err", err)
		return
	}

	id := uuid.New().String()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestion_events (timestamp, event_type, stage_name, message, details_json)
		 VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), eventType, stageName, message, string(detailsJSON),
	); err != nil {
		level.Warn(s.logger).Log("msg", "failed to log ingestion event", "event_id", id, "err", err)
	}
}

// GetRecentEvents returns up to limit most-recent events, optionally
// filtered by event type.
func (s *Store) GetRecentEvents(ctx context.Context, limit int, typeFilter string) ([]IngestionEvent, error) {
	query := `SELECT rowid, timestamp, event_type, stage_name, message, details_json FROM ingestion_events`

	args := []any{}
	if typeFilter != "" {
		query += " WHERE event_type = ?"
		args = append(args, typeFilter)
	}

	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &gcerrors.StoreError{Op: "get_recent_events", Err: err}
	}
	defer rows.Close()

	var out []IngestionEvent

	for rows.Next() {
		var (
			rowid       int64
			tsRaw       string
			eventType   string
			stageName   sql.NullString
			message     sql.NullString
			detailsJSON sql.NullString
		)

		if err := rows.Scan(&rowid, &tsRaw, &eventType, &stageName, &message, &detailsJSON); err != nil {
			return nil, &gcerrors.StoreError{Op: "get_recent_events", Err: err}
		}

		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, &gcerrors.StoreError{Op: "get_recent_events", Err: err}
		}

		details := map[string]any{}
		if detailsJSON.Valid && detailsJSON.String != "" {
			_ = json.Unmarshal([]byte(detailsJSON.String), &details)
		}

		out = append(out, IngestionEvent{
			Timestamp: ts,
			EventType: eventType,
			StageName: stageName.String,
			Message:   message.String,
			Details:   details,
		})
	}

	return out, rows.Err()
}

// IngestionStatus summarizes current pipeline health for the admin/status
// surface (cmd/gridcarbon's "status" command and pkg/service).
type IngestionStatus struct {
	IsActive        bool
	LatestTimestamp *time.Time
	RecordCount     int
	RecentEvents    []IngestionEvent
}

// activeWindow is how recent the latest intensity timestamp must be for
// the pipeline to be considered "active".
const activeWindow = 10 * time.Minute

// GetIngestionStatus reports whether ingestion looks alive (a carbon
// intensity row within the last 10 minutes) plus recent events.
func (s *Store) GetIngestionStatus(ctx context.Context) (*IngestionStatus, error) {
	latest, err := s.GetLatestIntensity(ctx)
	if err != nil {
		return nil, err
	}

	count, err := s.RecordCount(ctx)
	if err != nil {
		return nil, err
	}

	events, err := s.GetRecentEvents(ctx, 20, "")
	if err != nil {
		return nil, err
	}

	status := &IngestionStatus{RecordCount: count, RecentEvents: events}

	if latest != nil {
		ts := latest.Timestamp
		status.LatestTimestamp = &ts
		status.IsActive = time.Since(ts) <= activeWindow
	}

	return status, nil
}
