package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testschool/assessment-backend/internal/model"
)

func TestMonitorLatchesExactlyOnce(t *testing.T) {
	var warnings, submits atomic.Int32
	m := NewMonitor(10*time.Millisecond, zerolog.Nop(),
		func(model.ViolationReason) { warnings.Add(1) },
		func(model.ViolationReason) { submits.Add(1) },
	)
	m.Arm()

	var latched atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Signal(model.ReasonTabSwitch) {
				latched.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), latched.Load())
	assert.Equal(t, int32(1), warnings.Load())
	assert.Equal(t, MonitorViolated, m.State())

	waitFor(t, func() bool { return submits.Load() == 1 })
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), submits.Load())
}

func TestMonitorIgnoresSignalsWhenInactive(t *testing.T) {
	m := NewMonitor(10*time.Millisecond, zerolog.Nop(),
		func(model.ViolationReason) { t.Error("warning fired while inactive") },
		func(model.ViolationReason) { t.Error("auto-submit fired while inactive") },
	)

	assert.False(t, m.Signal(model.ReasonDevTools))
	assert.Equal(t, MonitorInactive, m.State())
}

func TestMonitorDisarmCancelsPendingAutoSubmit(t *testing.T) {
	var submits atomic.Int32
	m := NewMonitor(15*time.Millisecond, zerolog.Nop(),
		func(model.ViolationReason) {},
		func(model.ViolationReason) { submits.Add(1) },
	)
	m.Arm()
	require.True(t, m.Signal(model.ReasonRefresh))

	// Disarm inside the grace window. The pending timer fires but the
	// generation moved on, so nothing happens.
	m.Disarm()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), submits.Load())
}

func TestMonitorRearmAfterDisarmLatchesAgain(t *testing.T) {
	var warnings atomic.Int32
	m := NewMonitor(5*time.Millisecond, zerolog.Nop(),
		func(model.ViolationReason) { warnings.Add(1) },
		func(model.ViolationReason) {},
	)
	m.Arm()
	require.True(t, m.Signal(model.ReasonTabSwitch))
	m.Disarm()
	m.Arm()
	require.True(t, m.Signal(model.ReasonDevTools))

	assert.Equal(t, int32(2), warnings.Load())
}

func TestMonitorAuditReasonsNeverTrigger(t *testing.T) {
	m := NewMonitor(5*time.Millisecond, zerolog.Nop(),
		func(model.ViolationReason) { t.Error("audit reason raised a warning") },
		func(model.ViolationReason) { t.Error("audit reason forced a submit") },
	)
	m.Arm()

	assert.False(t, m.Signal(model.ReasonContextMenu))
	assert.False(t, m.Signal(model.ReasonUnloadAttempt))
	assert.Equal(t, MonitorArmed, m.State())
	time.Sleep(15 * time.Millisecond)
}

func TestViolationReasonTriggers(t *testing.T) {
	assert.True(t, model.ReasonTabSwitch.Triggers())
	assert.True(t, model.ReasonDevTools.Triggers())
	assert.True(t, model.ReasonViewSource.Triggers())
	assert.True(t, model.ReasonRefresh.Triggers())
	assert.False(t, model.ReasonContextMenu.Triggers())
	assert.False(t, model.ReasonUnloadAttempt.Triggers())
	assert.False(t, model.ViolationReason("made_up").Known())
}
