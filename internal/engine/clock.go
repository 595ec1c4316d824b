package engine

import "sync/atomic"

// Clock is the monotonic logical clock stamping every journal record.
// Sequence numbers make event ordering explicit and replayable; virtual
// time (milliseconds) is tracked separately on calls and events.
//
// Safe for concurrent use; in practice only Submit and the single-writer
// loop touch it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known sequence number,
// used when continuing a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number. Each call returns a unique,
// strictly increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the latest issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
