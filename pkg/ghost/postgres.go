package ghost

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists ghost sessions in the ghost_sessions table. The
// at-most-one-active invariant is enforced by a partial unique index on
// the operator, so it holds across instances.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the table and indexes if needed.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS ghost_sessions (
		id UUID PRIMARY KEY,
		token UUID NOT NULL,
		operator_id VARCHAR(64) NOT NULL,
		firm_id VARCHAR(64) NOT NULL,
		firm_slug VARCHAR(128) NOT NULL,
		purpose TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP WITH TIME ZONE NOT NULL,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		ended_at TIMESTAMP WITH TIME ZONE,
		trail JSONB NOT NULL DEFAULT '[]'
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_ghost_sessions_one_active
		ON ghost_sessions(operator_id) WHERE ended_at IS NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ghost_sessions_token ON ghost_sessions(token);
	CREATE INDEX IF NOT EXISTS idx_ghost_sessions_firm_id ON ghost_sessions(firm_id);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure ghost_sessions schema: %w", err)
	}
	return nil
}

const sessionColumns = "id, token, operator_id, firm_id, firm_slug, purpose, notes, started_at, expires_at, ended_at, trail"

func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	trail, err := json.Marshal(sess.Trail)
	if err != nil {
		return fmt.Errorf("marshal trail: %w", err)
	}

	query := `
		INSERT INTO ghost_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.Token, sess.OperatorID, sess.FirmID, sess.FirmSlug,
		sess.Purpose, sess.Notes, sess.StartedAt, sess.ExpiresAt, trail,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrConflict
		}
		return fmt.Errorf("insert ghost session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveByOperator(ctx context.Context, operatorID string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM ghost_sessions WHERE operator_id = $1 AND ended_at IS NULL`
	return scanSession(s.db.QueryRowContext(ctx, query, operatorID))
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM ghost_sessions WHERE token = $1`
	return scanSession(s.db.QueryRowContext(ctx, query, token))
}

func (s *PostgresStore) AppendTrail(ctx context.Context, id string, entry AuditEntry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal trail entry: %w", err)
	}

	query := `
		UPDATE ghost_sessions
		SET trail = trail || $2::jsonb
		WHERE id = $1 AND ended_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, id, encoded)
	if err != nil {
		return fmt.Errorf("append ghost trail: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) End(ctx context.Context, id string, at time.Time, entry AuditEntry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal trail entry: %w", err)
	}

	query := `
		UPDATE ghost_sessions
		SET ended_at = $2, trail = trail || $3::jsonb
		WHERE id = $1 AND ended_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, id, at, encoded)
	if err != nil {
		return fmt.Errorf("end ghost session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListUnended(ctx context.Context) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM ghost_sessions WHERE ended_at IS NULL`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list ghost sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var endedAt sql.NullTime
	var trail []byte

	err := row.Scan(
		&sess.ID, &sess.Token, &sess.OperatorID, &sess.FirmID, &sess.FirmSlug,
		&sess.Purpose, &sess.Notes, &sess.StartedAt, &sess.ExpiresAt, &endedAt, &trail,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ghost session: %w", err)
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	if len(trail) > 0 {
		if err := json.Unmarshal(trail, &sess.Trail); err != nil {
			return nil, fmt.Errorf("decode ghost trail: %w", err)
		}
	}
	return &sess, nil
}
