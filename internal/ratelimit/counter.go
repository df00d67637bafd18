package ratelimit

import (
	"sync"
	"time"
)

// RateWindowCounter counts events over a sliding period split into fixed buckets.
// Increment advances the window and reads the total under one lock.
type RateWindowCounter struct {
	mu          sync.Mutex
	buckets     []int
	width       time.Duration
	head        int64
	started     bool
	lastTouched time.Time
}

func NewRateWindowCounter(period time.Duration, buckets int) *RateWindowCounter {
	if buckets <= 0 {
		buckets = 1
	}
	width := period / time.Duration(buckets)
	if width <= 0 {
		width = time.Millisecond
	}

	return &RateWindowCounter{
		buckets: make([]int, buckets),
		width:   width,
	}
}

// Increment records one event at now and returns the rolling total including it.
func (c *RateWindowCounter) Increment(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advance(now)
	c.buckets[c.slot(c.head)]++
	c.lastTouched = now

	return c.sum()
}

// Count returns the rolling total at now without recording an event.
func (c *RateWindowCounter) Count(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advance(now)
	return c.sum()
}

func (c *RateWindowCounter) LastTouched() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastTouched
}

func (c *RateWindowCounter) advance(now time.Time) {
	idx := now.UnixNano() / int64(c.width)
	if !c.started {
		c.head = idx
		c.started = true
		return
	}
	if idx <= c.head {
		return
	}

	if idx-c.head >= int64(len(c.buckets)) {
		clear(c.buckets)
	} else {
		for i := c.head + 1; i <= idx; i++ {
			c.buckets[c.slot(i)] = 0
		}
	}
	c.head = idx
}

func (c *RateWindowCounter) slot(idx int64) int {
	return int(idx % int64(len(c.buckets)))
}

func (c *RateWindowCounter) sum() int {
	total := 0
	for _, n := range c.buckets {
		total += n
	}
	return total
}
