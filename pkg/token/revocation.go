package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// RevocationStore tracks tokens invalidated before their natural expiry.
// Entries are keyed by token hash so the store never holds secrets in
// cleartext, and carry the token's own expiry so they can be forgotten once
// structural verification alone would reject the token anyway.
type RevocationStore interface {
	// Revoke records a token hash until expiry.
	Revoke(ctx context.Context, tokenHash string, expiry time.Time) error

	// IsRevoked reports whether a token hash is currently revoked.
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)

	// Purge drops entries whose expiry has passed and returns the count
	// removed. Purging is memory hygiene only; lookups already ignore
	// expired entries.
	Purge(ctx context.Context, now time.Time) (int, error)
}

// HashToken computes the stable hash under which a token is revoked.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryRevocationStore is a process-local revocation set. Revocations
// recorded here are not visible to other instances of the service; use the
// Redis store for multi-instance deployments.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore creates an empty in-process revocation set.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke records the hash until expiry. Hashes already past expiry are not
// stored; verification would reject the token regardless.
func (s *MemoryRevocationStore) Revoke(_ context.Context, tokenHash string, expiry time.Time) error {
	if !expiry.After(s.now()) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tokenHash] = expiry
	return nil
}

// IsRevoked reports whether the hash has an unexpired entry.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	s.mu.RLock()
	expiry, ok := s.entries[tokenHash]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !expiry.After(s.now()) {
		// Entry aged out; drop it lazily.
		s.mu.Lock()
		delete(s.entries, tokenHash)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Purge removes all expired entries.
func (s *MemoryRevocationStore) Purge(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for hash, expiry := range s.entries {
		if !expiry.After(now) {
			delete(s.entries, hash)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of live entries, for metrics and tests.
func (s *MemoryRevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
