package utils

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum interval between consecutive requests.
// Pagination is sequential on purpose (shared-IP / anti-bot courtesy), so
// this is a simple pacer rather than a worker pool.
type Throttle struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastRequest time.Time
}

// NewThrottle creates a Throttle with the given minimum gap in milliseconds.
func NewThrottle(intervalMs int) *Throttle {
	return &Throttle{minInterval: time.Duration(intervalMs) * time.Millisecond}
}

// Wait blocks until the minimum interval since the previous request has
// elapsed, or ctx is cancelled.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	elapsed := time.Since(t.lastRequest)
	pause := t.minInterval - elapsed
	t.mu.Unlock()

	if pause > 0 {
		select {
		case <-time.After(pause):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t.mu.Lock()
	t.lastRequest = time.Now()
	t.mu.Unlock()
	return nil
}

// URLSet is a thread-safe set for deduplicating listing permalinks across
// all queried years.
type URLSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewURLSet creates an empty URLSet.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add returns true if the URL was newly added, false if already present.
func (s *URLSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[url]; exists {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

// Contains returns true if the URL has already been seen.
func (s *URLSet) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[url]
	return exists
}

// Size returns the number of unique URLs tracked.
func (s *URLSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
