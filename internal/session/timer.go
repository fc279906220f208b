package session

import (
	"sync"
	"time"
)

// Timer produces one tick per interval while running and reports elapsed
// whole seconds of session time. The tick value is informational; the
// authoritative countdown always comes from the service's latest
// time-remaining figure, so a throttled or suspended process can never
// grant extra time. A missed tick is tolerated; the next fetch resyncs.
type Timer struct {
	interval time.Duration
	onTick   func(elapsed int)

	mu      sync.Mutex
	elapsed int
	running bool
	stopCh  chan struct{}
}

// NewTimer creates a stopped timer. onTick is invoked from the timer's
// goroutine once per interval with the incremented elapsed-seconds value.
func NewTimer(interval time.Duration, onTick func(elapsed int)) *Timer {
	return &Timer{interval: interval, onTick: onTick}
}

// Start begins ticking from the current elapsed value. Calling Start on a
// running timer is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	go t.run(t.stopCh)
}

// Stop halts ticking. Idempotent.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
}

// Reset sets the elapsed counter, typically to zero for a fresh session or
// to a persisted value when resuming an attempt.
func (t *Timer) Reset(elapsed int) {
	t.mu.Lock()
	t.elapsed = elapsed
	t.mu.Unlock()
}

// Elapsed returns the current elapsed-seconds value.
func (t *Timer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

func (t *Timer) run(stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			if !t.running {
				t.mu.Unlock()
				return
			}
			t.elapsed++
			elapsed := t.elapsed
			cb := t.onTick
			// Callback runs outside the lock so it may call back into
			// Stop or Reset without deadlocking.
			t.mu.Unlock()
			if cb != nil {
				cb(elapsed)
			}
		}
	}
}
