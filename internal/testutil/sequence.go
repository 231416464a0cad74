package testutil

import (
	"fmt"
	"sync"
)

// counter is a mutex-guarded monotonic counter that can be rewound.
type counter struct {
	mu sync.Mutex
	n  int64
}

func (c *counter) next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func (c *counter) current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *counter) reset(to int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = to
}

// DeterministicClock stamps ledger transactions with seq values that can
// be replayed: unlike the ledger's own clock it can be rewound, so one
// scenario run twice produces identical traces.
type DeterministicClock struct {
	c     counter
	start int64
}

// NewDeterministicClock creates a clock whose first Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// NewDeterministicClockAt creates a clock whose first Next returns start+1,
// as a reopened ledger resumes after its last seq.
func NewDeterministicClockAt(start int64) *DeterministicClock {
	clock := &DeterministicClock{start: start}
	clock.c.reset(start)
	return clock
}

// Next returns the next seq.
func (d *DeterministicClock) Next() int64 { return d.c.next() }

// Current returns the last seq handed out without advancing.
func (d *DeterministicClock) Current() int64 { return d.c.current() }

// Reset rewinds the clock to where it started.
func (d *DeterministicClock) Reset() { d.c.reset(d.start) }

// SequentialIDs generates transaction IDs of the form "<prefix>-0001",
// "<prefix>-0002", ... so golden traces do not depend on time or randomness.
type SequentialIDs struct {
	c      counter
	prefix string
}

// NewSequentialIDs creates a generator. An empty prefix becomes "tx".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "tx"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.c.next())
}

// Reset restarts numbering at 0001.
func (g *SequentialIDs) Reset() { g.c.reset(0) }
