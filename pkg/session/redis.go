package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/lexvault/lexvault/pkg/auth"
)

// resolveRetries bounds retries of the idempotent read on transient store
// errors. Writes are never retried.
const resolveRetries = 2

// RedisStore keeps sessions in Redis so resolution works across service
// instances. Records are JSON values with a TTL refreshed on access.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "session"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *RedisStore) key(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}

// Create persists a new session. A write failure is returned to the
// caller, which must treat it as a hard login failure.
func (s *RedisStore) Create(ctx context.Context, userID string, role auth.Role, firmID string) (string, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Role:           role,
		FirmID:         firmID,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}
	return sess.ID, nil
}

// Resolve loads the session, bumps last-accessed, and refreshes the TTL.
// The read is retried a bounded number of times on transient errors since
// it is idempotent.
func (s *RedisStore) Resolve(ctx context.Context, id string) (*Session, error) {
	var data string
	var err error
	for attempt := 0; attempt <= resolveRetries; attempt++ {
		data, err = s.client.Get(ctx, s.key(id)).Result()
		if err == nil || err == redis.Nil {
			break
		}
	}
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		// Corrupt record; drop it rather than serving garbage.
		s.client.Del(ctx, s.key(id))
		return nil, ErrNotFound
	}

	sess.LastAccessedAt = s.now().UTC()
	if updated, err := json.Marshal(&sess); err == nil {
		// Best effort: a failed touch does not fail resolution.
		s.client.Set(ctx, s.key(id), updated, s.ttl)
	}
	return &sess, nil
}

// Destroy deletes the session record.
func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}
