package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ent0n29/echo/internal/lifecycle"
)

// RecordingTimer counts whole seconds of an active recording. A tick that
// races with Stop is discarded: the counter is checked and incremented under
// the same mutex Stop takes.
type RecordingTimer struct {
	clock lifecycle.Clock

	mu      sync.Mutex
	seconds int
	running bool
	ticker  lifecycle.Ticker
	stop    chan struct{}
}

func NewRecordingTimer(clock lifecycle.Clock) *RecordingTimer {
	if clock == nil {
		clock = lifecycle.SystemClock{}
	}
	return &RecordingTimer{clock: clock}
}

// Start resets the counter and begins ticking once per second.
func (t *RecordingTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.seconds = 0
	t.running = true
	t.ticker = t.clock.NewTicker(time.Second)
	t.stop = make(chan struct{})
	go t.loop(t.ticker, t.stop)
}

// Stop halts the timer and returns the final count.
func (t *RecordingTimer) Stop() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.running = false
		t.ticker.Stop()
		close(t.stop)
	}
	return t.seconds
}

func (t *RecordingTimer) Seconds() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seconds
}

func (t *RecordingTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *RecordingTimer) loop(ticker lifecycle.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			t.mu.Lock()
			if !t.running || t.stop != stop {
				t.mu.Unlock()
				return
			}
			t.seconds++
			t.mu.Unlock()
		}
	}
}

// FormatSeconds renders a duration as m:ss.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return formatMinSec(seconds)
}

// FormatMillis renders a millisecond duration as m:ss, truncating.
func FormatMillis(millis int64) string {
	if millis < 0 {
		millis = 0
	}
	return formatMinSec(int(millis / 1000))
}

func formatMinSec(total int) string {
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
