package ghost

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO ghost_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	now := time.Now().UTC()
	err = store.Create(context.Background(), &Session{
		ID: "sess-1", Token: "tok-1", OperatorID: "admin-1", FirmID: "firm-1",
		FirmSlug: "acme", Purpose: "ticket", StartedAt: now, ExpiresAt: now.Add(time.Hour),
		Trail: []AuditEntry{{At: now, Action: "SESSION_STARTED"}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO ghost_sessions`).
		WillReturnError(&pq.Error{Code: "23505"})

	store := NewPostgresStore(db)
	err = store.Create(context.Background(), &Session{ID: "sess-1", OperatorID: "admin-1"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgresActiveByOperator(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "token", "operator_id", "firm_id", "firm_slug", "purpose", "notes",
		"started_at", "expires_at", "ended_at", "trail",
	}).AddRow(
		"sess-1", "tok-1", "admin-1", "firm-1", "acme", "ticket", "",
		now, now.Add(time.Hour), nil, []byte(`[{"at":"2025-06-01T09:00:00Z","action":"SESSION_STARTED"}]`),
	)
	mock.ExpectQuery(`SELECT .+ FROM ghost_sessions WHERE operator_id = \$1 AND ended_at IS NULL`).
		WithArgs("admin-1").
		WillReturnRows(rows)

	store := NewPostgresStore(db)
	sess, err := store.ActiveByOperator(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", sess.FirmSlug)
	assert.Nil(t, sess.EndedAt)
	require.Len(t, sess.Trail, 1)
	assert.Equal(t, "SESSION_STARTED", sess.Trail[0].Action)
}

func TestPostgresActiveByOperatorNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM ghost_sessions`).
		WithArgs("admin-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewPostgresStore(db)
	_, err = store.ActiveByOperator(context.Background(), "admin-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresEnd(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE ghost_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	err = store.End(context.Background(), "sess-1", time.Now(), AuditEntry{Action: "SESSION_ENDED"})
	require.NoError(t, err)
}

func TestPostgresEndAlreadyEnded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE ghost_sessions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPostgresStore(db)
	err = store.End(context.Background(), "sess-1", time.Now(), AuditEntry{Action: "SESSION_ENDED"})
	assert.ErrorIs(t, err, ErrNotFound)
}
