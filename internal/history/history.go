// Package history remembers which songs a chat session was recently served,
// so the reranker can penalize repeats.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Tracker records and recalls per-session song history. Recent returns the
// newest song first.
type Tracker interface {
	Recent(ctx context.Context, session string) ([]int64, error)
	Record(ctx context.Context, session string, songIDs ...int64) error
	Close() error
}

// Config selects and tunes the history backend
type Config struct {
	Backend   string        `koanf:"backend" validate:"oneof=memory redis"`
	RedisAddr string        `koanf:"redis_addr" validate:"required_if=Backend redis"`
	RedisDB   int           `koanf:"redis_db" validate:"min=0"`
	Window    int           `koanf:"window" validate:"min=1,max=500"`
	TTL       time.Duration `koanf:"ttl" validate:"min=0"`
	Sessions  int           `koanf:"sessions" validate:"min=1"`
}

// DefaultConfig keeps the last 20 songs of up to 10000 sessions in memory
// for two hours
func DefaultConfig() Config {
	return Config{
		Backend:  BackendMemory,
		Window:   20,
		TTL:      2 * time.Hour,
		Sessions: 10000,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid history config: %w", err)
	}
	return nil
}

// New builds the configured tracker. A Redis tracker is pinged before it is
// returned.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendRedis:
		t := NewRedisTracker(cfg)
		if err := t.Ping(ctx); err != nil {
			_ = t.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis session history")
		return t, nil
	default:
		return NewMemoryTracker(cfg), nil
	}
}

// prepend puts ids in front of list, newest last in ids becoming first,
// dropping earlier occurrences and truncating to window
func prepend(list []int64, window int, ids ...int64) []int64 {
	out := make([]int64, 0, window)
	seen := make(map[int64]struct{}, window)
	for i := len(ids) - 1; i >= 0; i-- {
		if _, dup := seen[ids[i]]; dup {
			continue
		}
		seen[ids[i]] = struct{}{}
		out = append(out, ids[i])
	}
	for _, id := range list {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) > window {
		out = out[:window]
	}
	return out
}
