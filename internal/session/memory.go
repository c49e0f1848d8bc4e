package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry[T any] struct {
	value    T
	lastSeen time.Time
}

// MemoryStore holds sessions in process. Entries not read or written for
// longer than the TTL are removed by Sweep, which hands them to the evict
// callback outside the lock.
type MemoryStore[T any] struct {
	ttl       time.Duration
	onEvict   func(id string, v T)
	keepAlive func(v T) bool
	now       func() time.Time

	mu sync.RWMutex
	m  map[string]*entry[T]
}

type MemoryOption[T any] func(*MemoryStore[T])

func WithEvict[T any](fn func(id string, v T)) MemoryOption[T] {
	return func(s *MemoryStore[T]) { s.onEvict = fn }
}

// WithKeepAlive exempts entries from expiry while fn reports true for them.
func WithKeepAlive[T any](fn func(v T) bool) MemoryOption[T] {
	return func(s *MemoryStore[T]) { s.keepAlive = fn }
}

func WithClock[T any](now func() time.Time) MemoryOption[T] {
	return func(s *MemoryStore[T]) { s.now = now }
}

// NewMemoryStore returns a store whose entries expire after ttl of
// inactivity. A ttl of zero disables expiry.
func NewMemoryStore[T any](ttl time.Duration, opts ...MemoryOption[T]) *MemoryStore[T] {
	s := &MemoryStore[T]{
		ttl: ttl,
		now: time.Now,
		m:   map[string]*entry[T]{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore[T]) Get(_ context.Context, id string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	if !ok || s.expiredLocked(e) {
		var zero T
		return zero, false, nil
	}
	e.lastSeen = s.now()
	return e.value, true, nil
}

func (s *MemoryStore[T]) Put(_ context.Context, id string, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = &entry[T]{value: v, lastSeen: s.now()}
	return nil
}

func (s *MemoryStore[T]) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

func (s *MemoryStore[T]) NewID() string {
	return uuid.NewString()
}

func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Range calls fn for every entry, expired or not, outside the lock.
func (s *MemoryStore[T]) Range(fn func(id string, v T)) {
	type item struct {
		id string
		v  T
	}
	s.mu.RLock()
	items := make([]item, 0, len(s.m))
	for id, e := range s.m {
		items = append(items, item{id: id, v: e.value})
	}
	s.mu.RUnlock()

	for _, it := range items {
		fn(it.id, it.v)
	}
}

// Sweep removes expired entries and returns how many were evicted.
func (s *MemoryStore[T]) Sweep() int {
	type evicted struct {
		id string
		v  T
	}
	var out []evicted

	s.mu.Lock()
	for id, e := range s.m {
		if s.expiredLocked(e) {
			out = append(out, evicted{id: id, v: e.value})
			delete(s.m, id)
		}
	}
	s.mu.Unlock()

	if s.onEvict != nil {
		for _, e := range out {
			s.onEvict(e.id, e.v)
		}
	}
	return len(out)
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore[T]) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemoryStore[T]) expiredLocked(e *entry[T]) bool {
	if s.ttl <= 0 || s.now().Sub(e.lastSeen) <= s.ttl {
		return false
	}
	return s.keepAlive == nil || !s.keepAlive(e.value)
}
