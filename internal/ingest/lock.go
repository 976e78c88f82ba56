package ingest

import "sync/atomic"

// Lock is a non-blocking single-run guard: a second ingest while one is in
// flight fails fast instead of queueing behind it.
type Lock struct {
	state atomic.Int32 // 0 = free, 1 = held
}

// TryAcquire takes the lock if it is free
func (l *Lock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the lock. Only the holder may call it.
func (l *Lock) Release() {
	l.state.Store(0)
}

// Held reports whether an ingest is running
func (l *Lock) Held() bool {
	return l.state.Load() == 1
}
