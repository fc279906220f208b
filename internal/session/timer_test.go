package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerTicksAndStops(t *testing.T) {
	var last atomic.Int64
	tm := NewTimer(5*time.Millisecond, func(elapsed int) { last.Store(int64(elapsed)) })

	tm.Start()
	waitFor(t, func() bool { return last.Load() >= 2 })

	tm.Stop()
	stopped := last.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, last.Load())
}

func TestTimerStartIsIdempotent(t *testing.T) {
	var ticks atomic.Int32
	tm := NewTimer(5*time.Millisecond, func(int) { ticks.Add(1) })
	defer tm.Stop()

	tm.Start()
	tm.Start()
	tm.Start()

	waitFor(t, func() bool { return ticks.Load() >= 3 })
	// A doubled run loop would report elapsed ahead of wall time.
	assert.LessOrEqual(t, tm.Elapsed(), int(ticks.Load()))
}

func TestTimerResetPreservesBaseline(t *testing.T) {
	var last atomic.Int64
	tm := NewTimer(5*time.Millisecond, func(elapsed int) { last.Store(int64(elapsed)) })
	defer tm.Stop()

	tm.Reset(120)
	assert.Equal(t, 120, tm.Elapsed())

	tm.Start()
	waitFor(t, func() bool { return last.Load() > 120 })

	tm.Stop()
	tm.Reset(0)
	assert.Equal(t, 0, tm.Elapsed())
}
