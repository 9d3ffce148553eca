package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/NordCoder/doggy-auth/internal/domain/ratelimit"
)

var _ ratelimit.CounterStore = (*MemoryStore)(nil)

type window struct {
	count int64
	end   time.Time
}

// MemoryStore is a process-local CounterStore. Counters vanish on restart.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

func (s *MemoryStore) Incr(_ context.Context, key string, length time.Duration, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.end) {
		w = &window{end: now.Add(length)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.end, nil
}

func (s *MemoryStore) Prune(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, w := range s.windows {
		if !now.Before(w.end) {
			delete(s.windows, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
