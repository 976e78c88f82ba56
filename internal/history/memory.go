package history

import (
	"context"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryTracker keeps history in a bounded, expiring LRU of sessions. History
// is lost on restart.
type MemoryTracker struct {
	mu     sync.Mutex
	window int
	lru    *expirable.LRU[string, []int64]
}

// NewMemoryTracker creates an in-process tracker
func NewMemoryTracker(cfg Config) *MemoryTracker {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Sessions <= 0 {
		cfg.Sessions = def.Sessions
	}
	return &MemoryTracker{
		window: cfg.Window,
		lru:    expirable.NewLRU[string, []int64](cfg.Sessions, nil, cfg.TTL),
	}
}

func (m *MemoryTracker) Recent(_ context.Context, session string) ([]int64, error) {
	if session == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lru.Get(session)
	if !ok {
		return nil, nil
	}
	return append([]int64(nil), list...), nil
}

func (m *MemoryTracker) Record(_ context.Context, session string, songIDs ...int64) error {
	if session == "" || len(songIDs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list, _ := m.lru.Peek(session)
	m.lru.Add(session, prepend(list, m.window, songIDs...))
	return nil
}

// Sessions returns the number of tracked sessions
func (m *MemoryTracker) Sessions() int {
	return m.lru.Len()
}

func (m *MemoryTracker) Close() error {
	m.lru.Purge()
	return nil
}
