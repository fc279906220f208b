package session

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/testschool/assessment-backend/internal/model"
)

// MonitorState enumerates the security monitor's states.
type MonitorState int32

const (
	MonitorInactive MonitorState = iota
	MonitorArmed
	MonitorViolated
)

// Monitor watches integrity signals reported for an active attempt and
// guarantees the auto-submit callback fires at most once per armed session,
// no matter how many violation signals arrive or from how many goroutines.
// The latch is an atomic check-and-set, not an optimistically written flag.
//
// These signals originate in code the candidate's browser controls, so the
// monitor provides deterrence and an audit trail, not proof against a
// determined attacker.
type Monitor struct {
	grace time.Duration
	log   zerolog.Logger

	state atomic.Int32
	// armGen changes whenever the monitor is disarmed or re-armed. A grace
	// timer captured under an older generation must not force-submit a
	// later, unrelated session.
	armGen atomic.Uint64

	onWarning    func(reason model.ViolationReason)
	onAutoSubmit func(reason model.ViolationReason)
}

// NewMonitor creates an inactive monitor. onWarning fires immediately when
// a violation latches; onAutoSubmit fires once the grace delay expires.
func NewMonitor(grace time.Duration, log zerolog.Logger, onWarning, onAutoSubmit func(model.ViolationReason)) *Monitor {
	return &Monitor{
		grace:        grace,
		log:          log.With().Str("component", "security_monitor").Logger(),
		onWarning:    onWarning,
		onAutoSubmit: onAutoSubmit,
	}
}

// Arm transitions Inactive → Armed when the session becomes active.
// Arming an already-armed or violated monitor is a no-op.
func (m *Monitor) Arm() {
	if m.state.CompareAndSwap(int32(MonitorInactive), int32(MonitorArmed)) {
		m.armGen.Add(1)
		m.log.Debug().Msg("Security monitor armed")
	}
}

// Disarm returns the monitor to Inactive from any state and resets the
// latch so a later session is independently monitorable. Called on every
// session exit path: completion, reset, teardown.
func (m *Monitor) Disarm() {
	prev := MonitorState(m.state.Swap(int32(MonitorInactive)))
	if prev != MonitorInactive {
		m.armGen.Add(1)
		m.log.Debug().Msg("Security monitor disarmed")
	}
}

// State returns the current monitor state.
func (m *Monitor) State() MonitorState {
	return MonitorState(m.state.Load())
}

// Signal reports a detected integrity signal. Audit-only reasons (context
// menu, unload attempt) are logged and never latch. For triggering reasons
// the first call wins the Armed → Violated transition: it emits the warning
// and schedules the forced submission after the grace delay. The delay lets
// the candidate read the warning; it never cancels the submission.
// Returns true when this call latched the violation.
func (m *Monitor) Signal(reason model.ViolationReason) bool {
	if !reason.Triggers() {
		m.log.Info().Str("reason", string(reason)).Msg("Audit-only integrity signal")
		return false
	}

	if !m.state.CompareAndSwap(int32(MonitorArmed), int32(MonitorViolated)) {
		// Not armed, or another signal already won the latch.
		return false
	}

	gen := m.armGen.Load()
	m.log.Warn().Str("reason", string(reason)).Msg("Integrity violation latched")

	if m.onWarning != nil {
		m.onWarning(reason)
	}

	time.AfterFunc(m.grace, func() {
		if m.armGen.Load() != gen {
			// Session ended before the grace delay expired; the completion
			// path already ran and a newer session must not be touched.
			return
		}
		if m.onAutoSubmit != nil {
			m.onAutoSubmit(reason)
		}
	})

	return true
}
