package lifecycle

import (
	"sync"
	"time"
)

// ManualClock is a deterministic Clock. Tickers and timers fire only when the
// test calls Tick or Fire.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*ManualTicker
	timers  []*ManualTimer
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) NewTicker(time.Duration) Ticker {
	t := &ManualTicker{ch: make(chan time.Time)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *ManualClock) NewTimer(time.Duration) Timer {
	t := &ManualTimer{ch: make(chan time.Time, 1)}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return t
}

// Tickers returns every ticker created so far, oldest first.
func (c *ManualClock) Tickers() []*ManualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ManualTicker(nil), c.tickers...)
}

// Timers returns every timer created so far, oldest first.
func (c *ManualClock) Timers() []*ManualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ManualTimer(nil), c.timers...)
}

// ManualTicker delivers one tick per Tick call. Tick blocks until the
// consumer receives it, or returns false once the ticker is stopped.
type ManualTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	stopped bool
}

func (t *ManualTicker) C() <-chan time.Time { return t.ch }

func (t *ManualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *ManualTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *ManualTicker) Tick(timeout time.Duration) bool {
	if t.Stopped() {
		return false
	}
	select {
	case t.ch <- time.Now():
		return true
	case <-time.After(timeout):
		return false
	}
}

type ManualTimer struct {
	mu      sync.Mutex
	ch      chan time.Time
	stopped bool
	fired   bool
}

func (t *ManualTimer) C() <-chan time.Time { return t.ch }

func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *ManualTimer) Fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.fired = true
	t.ch <- time.Now()
	return true
}
