// Package directory is the credential-store collaborator: user lookup and
// password verification. The authentication core consumes this interface;
// user administration itself lives elsewhere.
package directory

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lexvault/lexvault/pkg/auth"
)

// User statuses.
const (
	StatusActive      = "active"
	StatusDeactivated = "deactivated"
)

// Lookup failure sentinels.
var (
	ErrNotFound    = errors.New("user not found")
	ErrDeactivated = errors.New("user deactivated")
)

// User is a directory record. FirmID is empty for platform-level roles.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         auth.Role  `json:"role"`
	FirmID       string     `json:"firm_id,omitempty"`
	Status       string     `json:"status"`
	TokenVersion int64      `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Active reports whether the user may authenticate.
func (u *User) Active() bool {
	return u != nil && u.Status == StatusActive
}

// Store is the user lookup interface the auth core depends on.
type Store interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)

	// RecordLogin stamps a successful login. Best effort; login does not
	// fail if the stamp does.
	RecordLogin(ctx context.Context, id string, at time.Time) error

	// BumpTokenVersion advances the user's minimum refresh token version,
	// invalidating every outstanding refresh chain, and returns the new
	// version.
	BumpTokenVersion(ctx context.Context, id string) (int64, error)
}

// VerifyPassword compares a bcrypt hash against a candidate password.
func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
