package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start  time.Time
	length time.Duration
	count  int64
}

func (w *window) expired(now time.Time) bool { return !now.Before(w.start.Add(w.length)) }

// MemoryStore keeps windows in process memory. A client's window starts at
// its first hit and resets lazily once elapsed.
type MemoryStore struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastPrune time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: map[string]*window{}}
}

func (s *MemoryStore) Hit(_ context.Context, key string, length time.Duration, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now, length)

	w, ok := s.windows[key]
	if !ok || w.expired(now) {
		w = &window{start: now, length: length}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.start.Add(w.length), nil
}

// pruneLocked drops elapsed windows at most once per window length.
func (s *MemoryStore) pruneLocked(now time.Time, every time.Duration) {
	if now.Sub(s.lastPrune) < every {
		return
	}
	s.lastPrune = now
	for k, w := range s.windows {
		if w.expired(now) {
			delete(s.windows, k)
		}
	}
}

// Len reports the number of tracked windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
