package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmehdipour/vps-billing/internal/config"
	"github.com/jmehdipour/vps-billing/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real Redis when VPSBILL_TEST_REDIS_ADDR is set.
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("VPSBILL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("VPSBILL_TEST_REDIS_ADDR not set")
	}

	rdb, err := db.NewRedis(config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	key := "vpsbill:lock:test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { rdb.Del(ctx, key) })

	l := NewRedisLocker(rdb)

	unlock, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, unlock(ctx))

	unlock2, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// a stale release must not drop the new holder's lock
	require.NoError(t, unlock(ctx))
	n, err := rdb.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, unlock2(ctx))
}
