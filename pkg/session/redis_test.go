package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexvault/lexvault/pkg/auth"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, "session", time.Hour), mr
}

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	id, err := store.Create(ctx, "user-1", auth.RoleFirmAdmin, "firm-1")
	require.NoError(t, err)

	sess, err := store.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, auth.RoleFirmAdmin, sess.Role)

	require.NoError(t, store.Destroy(ctx, id))
	_, err = store.Resolve(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	id, err := store.Create(ctx, "user-1", auth.RoleStaff, "firm-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = store.Resolve(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreResolveRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	id, err := store.Create(ctx, "user-1", auth.RoleStaff, "firm-1")
	require.NoError(t, err)

	mr.FastForward(40 * time.Minute)
	_, err = store.Resolve(ctx, id)
	require.NoError(t, err)

	// Another 40 minutes would have passed the original TTL; the resolve
	// above refreshed it.
	mr.FastForward(40 * time.Minute)
	_, err = store.Resolve(ctx, id)
	assert.NoError(t, err)
}

func TestRedisStoreCorruptRecord(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, mr.Set("session:bad", "{not json"))
	_, err := store.Resolve(ctx, "bad")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("session:bad"), "corrupt record dropped")
}

func TestRedisStoreCreateFailureIsHard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "session", time.Hour)
	mr.Close()

	_, err := store.Create(context.Background(), "user-1", auth.RoleStaff, "firm-1")
	assert.Error(t, err, "a session that fails to persist must fail login")
}
