package fsstore

import "sync"

// sequencer allocates per-UTC-date message sequence numbers. Allocation is
// linearizable: the mutex is the single point of mutual exclusion, so two
// concurrent allocations never observe the same number. Counters are seeded
// from the index on Open, never by scanning bodies at call time.
type sequencer struct {
	mu       sync.Mutex
	counters map[string]int // date (YYYY-MM-DD) -> last allocated seq
}

func newSequencer() *sequencer {
	return &sequencer{counters: make(map[string]int)}
}

// next returns the next sequence number for the given date.
func (s *sequencer) next(date string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[date]++
	return s.counters[date]
}

// seed raises the counter for date to at least seq.
func (s *sequencer) seed(date string, seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq > s.counters[date] {
		s.counters[date] = seq
	}
}
