package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger writes audit events to a Postgres table.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit sink, creating the table if
// needed.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	l := &DBLogger{db: db}
	if err := l.ensureTable(); err != nil {
		return nil, fmt.Errorf("ensure security_events table: %w", err)
	}
	return l, nil
}

func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS security_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id VARCHAR(64),
		email VARCHAR(255),
		firm_id VARCHAR(64),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		reason VARCHAR(64),
		message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_security_events_timestamp ON security_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_security_events_event_type ON security_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_security_events_user_id ON security_events(user_id);
	CREATE INDEX IF NOT EXISTS idx_security_events_firm_id ON security_events(firm_id);
	`
	_, err := l.db.Exec(query)
	return err
}

// Log inserts the event.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO security_events (
			timestamp, event_type, status,
			user_id, email, firm_id,
			ip_address, user_agent, request_id,
			method, path, reason, message, metadata
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13, $14
		) RETURNING id
	`
	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.Email, event.FirmID,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.Reason, event.Message, metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// PruneOlderThan deletes events whose timestamp is older than the cutoff
// and returns how many rows were removed. Retention policy lives with the
// scheduler that calls this.
func (l *DBLogger) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM security_events WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune security events: %w", err)
	}
	return res.RowsAffected()
}

// Close is a no-op; the connection pool is owned by the caller.
func (l *DBLogger) Close() error { return nil }
