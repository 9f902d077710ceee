package directory

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexvault/lexvault/pkg/auth"
)

func userRows(t *testing.T) *sqlmock.Rows {
	t.Helper()
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "role", "firm_id",
		"status", "token_version", "created_at", "updated_at", "last_login_at",
	}).AddRow("user-1", "jordan@acme-law.example", "$2a$10$hash", "attorney", "firm-1",
		"active", int64(3), now, now, nil)
}

func TestPostgresFindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("user-1").
		WillReturnRows(userRows(t))

	store := NewPostgresStore(db)
	u, err := store.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", u.ID)
	assert.Equal(t, auth.RoleAttorney, u.Role)
	assert.Equal(t, int64(3), u.TokenVersion)
	assert.True(t, u.Active())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByEmailNormalizes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE lower\(email\) = \$1`).
		WithArgs("jordan@acme-law.example").
		WillReturnRows(userRows(t))

	store := NewPostgresStore(db)
	_, err = store.FindByEmail(context.Background(), "  Jordan@Acme-Law.example ")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewPostgresStore(db)
	_, err = store.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresBumpTokenVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE users SET token_version = token_version \+ 1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"token_version"}).AddRow(int64(4)))

	store := NewPostgresStore(db)
	v, err := store.BumpTokenVersion(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NoError(t, VerifyPassword(hash, "correct horse battery staple"))
	assert.Error(t, VerifyPassword(hash, "wrong password"))
}
