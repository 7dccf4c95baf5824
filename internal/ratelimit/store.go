package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/atlvs/lifecycle-gate/internal/safego"
)

// Store counts requests per key in fixed windows
type Store interface {
	// Increment counts one request for key at now. When no live window exists
	// for key a new one starts with count 1 and reset time now+window.
	// It returns the count including this request and the window's reset time.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)
}

// entry is one live window
type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps windows in process memory. Limits are therefore per
// instance. Expired windows are replaced lazily on access and removed by a
// periodic sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a store and starts its sweep loop
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	safego.Go("ratelimit-sweep", func() { s.sweepLoop(sweepInterval) })
	return s
}

// Increment implements Store
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = e
		return e.count, e.resetAt, nil
	}
	e.count++
	return e.count, e.resetAt, nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// sweep drops every window whose reset time has passed
func (s *MemoryStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.resetAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked windows
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop ends the sweep loop. It is safe to call more than once.
func (s *MemoryStore) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}
