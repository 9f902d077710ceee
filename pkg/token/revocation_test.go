package token

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashTokenStable(t *testing.T) {
	h1 := HashToken("some-token")
	h2 := HashToken("some-token")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, HashToken("other-token"))
}

func TestMemoryRevocationStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocationStore()

	revoked, err := store.IsRevoked(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "h1", time.Now().Add(time.Hour)))
	revoked, err = store.IsRevoked(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestMemoryRevocationStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryRevocationStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Revoke(ctx, "h1", now.Add(time.Minute)))

	now = now.Add(2 * time.Minute)
	revoked, err := store.IsRevoked(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, revoked, "entry past its expiry no longer revokes")
	assert.Equal(t, 0, store.Len(), "expired entry dropped on lookup")
}

func TestMemoryRevocationStorePurge(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryRevocationStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Revoke(ctx, "old", now.Add(time.Minute)))
	require.NoError(t, store.Revoke(ctx, "live", now.Add(time.Hour)))

	removed, err := store.Purge(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryRevocationStoreConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocationStore()
	expiry := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.Revoke(ctx, HashToken(string(rune('a'+i%26))), expiry)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = store.IsRevoked(ctx, HashToken(string(rune('a'+i%26))))
		}(i)
	}
	wg.Wait()
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisRevocationStore(t *testing.T) {
	ctx := context.Background()
	store := NewRedisRevocationStore(newTestRedis(t), "revoked")

	revoked, err := store.IsRevoked(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "h1", time.Now().Add(time.Hour)))
	revoked, err = store.IsRevoked(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRedisRevocationStoreSkipsExpired(t *testing.T) {
	ctx := context.Background()
	store := NewRedisRevocationStore(newTestRedis(t), "revoked")

	require.NoError(t, store.Revoke(ctx, "h1", time.Now().Add(-time.Minute)))
	revoked, err := store.IsRevoked(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRevocationStoreFailsClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisRevocationStore(client, "revoked")
	mr.Close()

	revoked, err := store.IsRevoked(context.Background(), "h1")
	assert.Error(t, err)
	assert.True(t, revoked, "store errors must report revoked")
}
