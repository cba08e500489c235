package inference

import (
	"sync"
	"time"
)

// Stats tracks per-call latency for an engine. Diagnostics only; nothing
// in the pipeline branches on these values.
type Stats struct {
	mu    sync.RWMutex
	count int64
	total time.Duration
}

// Record adds one completed call.
func (s *Stats) Record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	s.total += d
}

// Count returns the number of recorded calls.
func (s *Stats) Count() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Total returns the cumulative latency of all recorded calls.
func (s *Stats) Total() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Average returns the mean call latency, 0 when nothing was recorded.
func (s *Stats) Average() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return 0
	}
	return s.total / time.Duration(s.count)
}

// Reset clears all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
	s.total = 0
}
