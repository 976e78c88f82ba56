package history

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "songmatch:recent:"

// RedisTracker keeps history in Redis lists so it survives restarts and is
// shared between instances
type RedisTracker struct {
	client *redis.Client
	cfg    Config
}

// NewRedisTracker creates a tracker without contacting Redis
func NewRedisTracker(cfg Config) *RedisTracker {
	return NewRedisTrackerWithClient(redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	}), cfg)
}

// NewRedisTrackerWithClient wraps an existing client
func NewRedisTrackerWithClient(client *redis.Client, cfg Config) *RedisTracker {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &RedisTracker{client: client, cfg: cfg}
}

func key(session string) string {
	return keyPrefix + session
}

func (r *RedisTracker) Recent(ctx context.Context, session string) ([]int64, error) {
	if session == "" {
		return nil, nil
	}
	vals, err := r.client.LRange(ctx, key(session), 0, int64(r.cfg.Window-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	out := make([]int64, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (r *RedisTracker) Record(ctx context.Context, session string, songIDs ...int64) error {
	if session == "" || len(songIDs) == 0 {
		return nil
	}
	k := key(session)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range songIDs {
			pipe.LRem(ctx, k, 0, id)
			pipe.LPush(ctx, k, id)
		}
		pipe.LTrim(ctx, k, 0, int64(r.cfg.Window-1))
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, k, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

// Ping checks the connection
func (r *RedisTracker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisTracker) Close() error {
	return r.client.Close()
}
