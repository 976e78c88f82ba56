package history

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRedisTracker connects to a local Redis, skipping the test when none is
// running
func newRedisTracker(t *testing.T, window int) (*RedisTracker, string) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available, skipping integration test")
	}

	cfg := DefaultConfig()
	cfg.Backend = BackendRedis
	cfg.Window = window
	cfg.TTL = time.Minute
	tr := NewRedisTrackerWithClient(client, cfg)

	session := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	t.Cleanup(func() {
		client.Del(context.Background(), key(session))
		_ = tr.Close()
	})
	return tr, session
}

func TestRedisTracker(t *testing.T) {
	tr, session := newRedisTracker(t, 3)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, session, 1, 2))
	require.NoError(t, tr.Record(ctx, session, 3, 1))
	require.NoError(t, tr.Record(ctx, session, 4))

	got, err := tr.Recent(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 1, 3}, got)

	ttl, err := tr.client.TTL(ctx, key(session)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisTracker_UnknownSession(t *testing.T) {
	tr, session := newRedisTracker(t, 3)

	got, err := tr.Recent(context.Background(), session+"-missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}
