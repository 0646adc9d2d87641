package cache

import (
	"sync/atomic"
	"time"
)

// Snapshot is a lock-free, read-optimized container
// holding any immutable structure.
type Snapshot[T any] struct{ v atomic.Pointer[T] }

// Load returns the stored value and whether one is stored.
func (s *Snapshot[T]) Load() (T, bool) {
	p := s.v.Load()
	if p == nil {
		var z T
		return z, false
	}
	return *p, true
}

// Store atomically swaps in the new value.
func (s *Snapshot[T]) Store(v T) {
	s.v.Store(&v)
}

// Clear drops the stored value.
func (s *Snapshot[T]) Clear() {
	s.v.Store(nil)
}

type entry[T any] struct {
	val     T
	expires time.Time
}

// Expiring is a Snapshot whose value goes stale after a fixed TTL.
type Expiring[T any] struct {
	ttl  time.Duration
	now  func() time.Time
	snap Snapshot[entry[T]]
}

func NewExpiring[T any](ttl time.Duration) *Expiring[T] {
	return &Expiring[T]{ttl: ttl, now: time.Now}
}

// Get returns the value if one is stored and has not expired.
func (e *Expiring[T]) Get() (T, bool) {
	en, ok := e.snap.Load()
	if !ok || !e.now().Before(en.expires) {
		var z T
		return z, false
	}
	return en.val, true
}

func (e *Expiring[T]) Set(v T) {
	e.snap.Store(entry[T]{val: v, expires: e.now().Add(e.ttl)})
}

// Invalidate drops the value so the next Get misses.
func (e *Expiring[T]) Invalidate() {
	e.snap.Clear()
}
