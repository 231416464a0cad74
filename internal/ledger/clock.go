package ledger

import "sync/atomic"

// SeqSource stamps transactions with a strictly increasing seq.
type SeqSource interface {
	Next() int64
	Current() int64
}

// Clock is the ledger's monotonic logical clock. Every transaction,
// committed or reverted, consumes exactly one seq. Ordering never depends
// on wall time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start. Used when reopening a
// ledger whose last transaction had seq start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
