package ghost

import (
	"context"
	"sync"
	"time"
)

// Store persists ghost sessions. Create must reject a second active
// session for the same operator with ErrConflict.
type Store interface {
	Create(ctx context.Context, s *Session) error

	// ActiveByOperator returns the operator's unended session, expired or
	// not. Expiry policy belongs to the Manager.
	ActiveByOperator(ctx context.Context, operatorID string) (*Session, error)

	// FindByToken returns the session holding the opaque token, ended or
	// not.
	FindByToken(ctx context.Context, token string) (*Session, error)

	// AppendTrail adds an entry to an unended session's trail.
	AppendTrail(ctx context.Context, id string, entry AuditEntry) error

	// End closes the session and records the final trail entry.
	End(ctx context.Context, id string, at time.Time, entry AuditEntry) error

	// ListUnended returns every session without an end time.
	ListUnended(ctx context.Context) ([]*Session, error)
}

// MemoryStore is a process-local store for single-instance deployments
// and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.OperatorID == sess.OperatorID && existing.EndedAt == nil {
			return ErrConflict
		}
	}
	copied := cloneSession(sess)
	s.sessions[copied.ID] = copied
	return nil
}

func (s *MemoryStore) ActiveByOperator(_ context.Context, operatorID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.OperatorID == operatorID && sess.EndedAt == nil {
			return cloneSession(sess), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindByToken(_ context.Context, token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Token == token {
			return cloneSession(sess), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) AppendTrail(_ context.Context, id string, entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.EndedAt != nil {
		return ErrNotFound
	}
	sess.Trail = append(sess.Trail, entry)
	return nil
}

func (s *MemoryStore) End(_ context.Context, id string, at time.Time, entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.EndedAt != nil {
		return ErrNotFound
	}
	ended := at
	sess.EndedAt = &ended
	sess.Trail = append(sess.Trail, entry)
	return nil
}

func (s *MemoryStore) ListUnended(_ context.Context) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Session
	for _, sess := range s.sessions {
		if sess.EndedAt == nil {
			out = append(out, cloneSession(sess))
		}
	}
	return out, nil
}

func cloneSession(s *Session) *Session {
	copied := *s
	copied.Trail = append([]AuditEntry(nil), s.Trail...)
	return &copied
}
