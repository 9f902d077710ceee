package token

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisRevocationStore shares the revocation set across service instances.
// Each entry is a key with a TTL matching the token's remaining lifetime,
// so Redis expires entries on its own and Purge is a no-op.
type RedisRevocationStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocationStore creates a Redis-backed revocation set.
func NewRedisRevocationStore(client *redis.Client, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = "revoked"
	}
	return &RedisRevocationStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisRevocationStore) key(tokenHash string) string {
	return fmt.Sprintf("%s:%s", s.prefix, tokenHash)
}

// Revoke records the hash with a TTL running to the token's expiry.
func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenHash string, expiry time.Time) error {
	ttl := expiry.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.key(tokenHash), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revocation set write: %w", err)
	}
	return nil
}

// IsRevoked reports whether the hash key still exists. A store error fails
// closed: verification treats the token as revoked rather than accepting a
// token whose revocation status is unknown.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(tokenHash)).Result()
	if err != nil {
		return true, fmt.Errorf("revocation set read: %w", err)
	}
	return n > 0, nil
}

// Purge is a no-op: Redis TTLs expire entries natively.
func (s *RedisRevocationStore) Purge(context.Context, time.Time) (int, error) {
	return 0, nil
}
