package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
)

// SQLiteLog is a SQLite-backed event log.
type SQLiteLog struct {
	db *sql.DB
}

var _ Log = (*SQLiteLog)(nil)

// NewSQLite opens (or creates) the event database at dbPath.
func NewSQLite(dbPath string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	log := &SQLiteLog{db: db}
	if err := log.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return log, nil
}

func (s *SQLiteLog) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS healing_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			original_error TEXT,
			original_response TEXT,
			applied_mapping TEXT,
			success INTEGER NOT NULL DEFAULT 0,
			duration_ms REAL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_endpoint ON healing_events(endpoint)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON healing_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON healing_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_endpoint_ts ON healing_events(endpoint, timestamp DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *SQLiteLog) Append(ctx context.Context, event *domain.HealingEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var appliedMapping sql.NullString
	if event.AppliedMapping != nil {
		data, err := json.Marshal(event.AppliedMapping)
		if err != nil {
			return "", fmt.Errorf("failed to marshal applied mapping: %w", err)
		}
		appliedMapping = sql.NullString{String: string(data), Valid: true}
	}

	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	query := `INSERT INTO healing_events
	          (id, event_type, endpoint, timestamp, original_error, original_response, applied_mapping, success, duration_ms, metadata)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, string(event.Type), event.Endpoint, event.Timestamp,
		nullable(event.OriginalError), nullable(string(event.OriginalResponse)),
		appliedMapping, event.Success, event.DurationMS, metadata)

	if err != nil {
		return "", fmt.Errorf("failed to append event: %w", err)
	}

	return event.ID, nil
}

func (s *SQLiteLog) Query(ctx context.Context, filter Filter, limit int) ([]*domain.HealingEvent, error) {
	query := `SELECT id, event_type, endpoint, timestamp, original_error, original_response, applied_mapping, success, duration_ms, metadata
	          FROM healing_events WHERE 1=1`
	var args []any

	if filter.Endpoint != "" {
		query += " AND endpoint = ?"
		args = append(args, filter.Endpoint)
	}
	if filter.Type != "" {
		query += " AND event_type = ?"
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since)
	}

	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var result []*domain.HealingEvent
	for rows.Next() {
		var event domain.HealingEvent
		var eventType string
		var origErr, origResp, appliedMapping, metadata sql.NullString
		var durationMS sql.NullFloat64

		if err := rows.Scan(&event.ID, &eventType, &event.Endpoint, &event.Timestamp,
			&origErr, &origResp, &appliedMapping, &event.Success, &durationMS, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Type = domain.EventType(eventType)
		if origErr.Valid {
			event.OriginalError = origErr.String
		}
		if origResp.Valid && origResp.String != "" {
			event.OriginalResponse = json.RawMessage(origResp.String)
		}
		if appliedMapping.Valid && appliedMapping.String != "" {
			var m domain.SchemaMapping
			if err := json.Unmarshal([]byte(appliedMapping.String), &m); err != nil {
				return nil, fmt.Errorf("failed to unmarshal applied mapping: %w", err)
			}
			event.AppliedMapping = &m
		}
		if durationMS.Valid {
			event.DurationMS = durationMS.Float64
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		result = append(result, &event)
	}

	return result, rows.Err()
}

func (s *SQLiteLog) Stats(ctx context.Context, window time.Duration) (*Stats, error) {
	since := time.Now().UTC().Add(-window)

	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM healing_events WHERE timestamp >= ? GROUP BY event_type`,
		since)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{ByType: make(map[domain.EventType]int)}
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.ByType[domain.EventType(eventType)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.SuccessRate = computeRate(stats.ByType)
	return stats, nil
}

func (s *SQLiteLog) Close() error {
	return s.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
