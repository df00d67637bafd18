package ratelimit

import (
	"context"
	"sync"
	"time"
)

type (
	// CounterSet maps keys to rolling counters.
	CounterSet interface {
		Increment(ctx context.Context, key string) (int, error)
	}

	// Sweeper is implemented by counter sets that hold keys in process memory.
	Sweeper interface {
		Sweep() int
	}

	// MemoryCounterSet keeps one RateWindowCounter per key. Keys are evicted by
	// two sweeps running in alternation: each deletes the keys left untouched since
	// its own previous run, so a key always outlives at least one full period.
	MemoryCounterSet struct {
		mu        sync.RWMutex
		counters  map[string]*RateWindowCounter
		period    time.Duration
		buckets   int
		now       func() time.Time
		lastSweep [2]time.Time
		phase     int
	}
)

func NewMemoryCounterSet(period time.Duration, buckets int) *MemoryCounterSet {
	return &MemoryCounterSet{
		counters: make(map[string]*RateWindowCounter),
		period:   period,
		buckets:  buckets,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *MemoryCounterSet) WithClock(now func() time.Time) *MemoryCounterSet {
	s.now = now
	return s
}

// Increment holds the map lock while counting so a sweep cannot drop the counter
// between lookup and increment.
func (s *MemoryCounterSet) Increment(_ context.Context, key string) (int, error) {
	s.mu.RLock()
	c, ok := s.counters[key]
	if ok {
		n := c.Increment(s.now())
		s.mu.RUnlock()
		return n, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok = s.counters[key]
	if !ok {
		c = NewRateWindowCounter(s.period, s.buckets)
		s.counters[key] = c
	}
	return c.Increment(s.now()), nil
}

// Sweep runs the next purge phase and returns how many keys it removed.
func (s *MemoryCounterSet) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := s.lastSweep[s.phase]

	removed := 0
	for key, c := range s.counters {
		if c.LastTouched().Before(cutoff) {
			delete(s.counters, key)
			removed++
		}
	}

	s.lastSweep[s.phase] = now
	s.phase = 1 - s.phase

	return removed
}

func (s *MemoryCounterSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.counters)
}
