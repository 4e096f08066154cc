package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/docflow/idgen"
)

// PipelineEvent represents a domain-level event to record.
type PipelineEvent struct {
	EventType  string // e.g. "document_classified", "document_processed"
	DocumentID string
	FileType   string
	Intent     string
	Action     string
	Details    string // optional JSON
	Success    bool
}

// EventLogger writes pipeline events and manages retention cleanup.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger backed by the given observability database.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records a pipeline event. Non-blocking: errors are logged via slog
// but do not propagate, so a failing observability store never blocks the app.
func (l *EventLogger) LogEvent(ctx context.Context, event PipelineEvent) {
	eventID := l.newID()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO pipeline_event_logs (
			event_id, event_type, document_id, file_type, intent,
			action, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		eventID, event.EventType, event.DocumentID, event.FileType, event.Intent,
		event.Action, event.Details, event.Success, time.Now().Unix())
	if err != nil {
		slog.Error("observability event log failed", "error", err, "event_type", event.EventType)
	}
}

// RecentEvents returns the most recent events for a document, newest first.
// Pass an empty documentID for all documents.
func (l *EventLogger) RecentEvents(ctx context.Context, documentID string, limit int) ([]PipelineEvent, error) {
	q := `SELECT event_type, document_id, file_type, intent, action, details, success
	      FROM pipeline_event_logs`
	args := make([]any, 0, 2)
	if documentID != "" {
		q += " WHERE document_id = ?"
		args = append(args, documentID)
	}
	q += " ORDER BY created_at DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []PipelineEvent
	for rows.Next() {
		var e PipelineEvent
		var docID, fileType, intent, details sql.NullString
		if err := rows.Scan(&e.EventType, &docID, &fileType, &intent, &e.Action, &details, &e.Success); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.DocumentID = docID.String
		e.FileType = fileType.String
		e.Intent = intent.String
		e.Details = details.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// RetentionConfig specifies per-table retention in days. Zero means no cleanup.
type RetentionConfig struct {
	HTTPLogsDays   int
	EventLogsDays  int
	MetricsDays    int
	RunVacuumAfter bool
}

// Cleanup deletes records exceeding the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	now := time.Now()
	sweeps := []struct {
		name  string
		days  int
		query string
	}{
		{"http_request_logs", cfg.HTTPLogsDays, `DELETE FROM http_request_logs WHERE created_at < ?`},
		{"pipeline_event_logs", cfg.EventLogsDays, `DELETE FROM pipeline_event_logs WHERE created_at < ?`},
		{"metrics_timeseries", cfg.MetricsDays, `DELETE FROM metrics_timeseries WHERE timestamp < ?`},
	}

	for _, s := range sweeps {
		if s.days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -s.days).Unix()
		if _, err := db.ExecContext(ctx, s.query, cutoff); err != nil {
			return fmt.Errorf("cleanup %s: %w", s.name, err)
		}
	}

	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	return nil
}
