// Package session provides the server-side session store. Session
// identifiers are opaque and carry no claims; all authorization data is
// re-fetched on each resolution, so destroying a session is a single
// delete with no propagation delay.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexvault/lexvault/pkg/auth"
)

// ErrNotFound indicates no session exists for the identifier.
var ErrNotFound = errors.New("session not found")

// DefaultTTL is how long an untouched session stays resolvable.
const DefaultTTL = 12 * time.Hour

// Session is a server-side authenticated session record.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Role           auth.Role `json:"role"`
	FirmID         string    `json:"firm_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Store is the session lifecycle. A Create failure must be treated as a
// hard login failure by the caller: a session that was not persisted is
// not a session.
type Store interface {
	Create(ctx context.Context, userID string, role auth.Role, firmID string) (string, error)
	Resolve(ctx context.Context, id string) (*Session, error)
	Destroy(ctx context.Context, id string) error
}

// MemoryStore is a process-local session store for single-instance
// deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an in-process session store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create persists a new session and returns its opaque identifier.
func (s *MemoryStore) Create(_ context.Context, userID string, role auth.Role, firmID string) (string, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Role:           role,
		FirmID:         firmID,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess.ID, nil
}

// Resolve returns the session and bumps its last-accessed time. Sessions
// idle past the TTL resolve as not found.
func (s *MemoryStore) Resolve(_ context.Context, id string) (*Session, error) {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if now.Sub(sess.LastAccessedAt) > s.ttl {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	sess.LastAccessedAt = now
	copied := *sess
	return &copied, nil
}

// Destroy removes the session. Destroying an unknown id is not an error.
func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}
