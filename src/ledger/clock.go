package ledger

import (
	"time"

	"go.uber.org/atomic"
)

// clock hands out strictly increasing timestamps at microsecond resolution,
// which is what postgres keeps.
type clock struct {
	last atomic.Int64
	now  func() time.Time
}

func newClock(now func() time.Time) *clock {
	if now == nil {
		now = time.Now
	}
	return &clock{now: now}
}

func (c *clock) Next() time.Time {
	n := c.now().UnixMicro()
	for {
		last := c.last.Load()
		if n <= last {
			n = last + 1
		}
		if c.last.CompareAndSwap(last, n) {
			return time.UnixMicro(n).UTC()
		}
	}
}

// Observe moves the clock past t, used when replaying persisted history.
func (c *clock) Observe(t time.Time) {
	n := t.UnixMicro()
	for {
		last := c.last.Load()
		if n <= last || c.last.CompareAndSwap(last, n) {
			return
		}
	}
}
