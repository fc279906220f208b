package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/testschool/assessment-backend/internal/model"
)

// Controller owns one assessment session record and is its only mutator.
// The timer and the security monitor communicate with it exclusively
// through callbacks; handlers read state through Snapshot. All remote calls
// happen outside the lock, and every response is checked against the
// generation captured at issue time so a result arriving after Reset (or
// after the attempt was replaced) is discarded rather than applied.
type Controller struct {
	svc    Service
	cfg    Config
	log    zerolog.Logger
	userID int

	mu      sync.Mutex
	state   State
	step    model.Step
	testID  string
	gen     uint64
	elapsed int

	// Countdown anchor: the server-reported remaining seconds at the last
	// completed fetch, and the elapsed reading it arrived at. The displayed
	// remaining time is always derived from these, never counted down
	// independently; the server's value overwrites the anchor on every
	// fetch and the deadline worker enforces the real timeout regardless.
	remainingAtFetch int
	fetchElapsed     int
	hasRemaining     bool
	errMsg        string
	current       *model.CurrentQuestionView
	result        *model.CompletionView
	notify        func(Event)

	// Single-flight and at-most-once guards. Explicit atomic check-and-set
	// so concurrent triggers (double-click, timer expiry racing a manual
	// end, simultaneous violation signals) collapse to one effect.
	submitting atomic.Bool
	completing atomic.Bool

	// Closed by the winning Complete caller once the terminal state is
	// reached, so losing callers can wait for the result.
	completeDone chan struct{}

	timer   *Timer
	monitor *Monitor
}

// NewController creates a controller in NotStarted for the given user.
func NewController(svc Service, cfg Config, log zerolog.Logger, userID int) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		svc:    svc,
		cfg:    cfg,
		log:    log.With().Str("component", "session_controller").Int("user_id", userID).Logger(),
		userID: userID,
		state:  StateNotStarted,
	}
	c.timer = NewTimer(cfg.TickInterval, c.handleTick)
	c.monitor = NewMonitor(cfg.ViolationGrace, log, c.handleWarning, c.handleAutoSubmit)
	return c
}

// UserID returns the owning user's id.
func (c *Controller) UserID() int { return c.userID }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TestID returns the active attempt id, empty before a successful start.
func (c *Controller) TestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.testID
}

// CurrentQuestionID returns the id of the loaded question, empty when no
// question has been fetched yet or the attempt is on its final screen.
func (c *Controller) CurrentQuestionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.Question == nil {
		return ""
	}
	return c.current.Question.ID
}

// SetNotify registers an event sink. Pass nil to detach.
func (c *Controller) SetNotify(fn func(Event)) {
	c.mu.Lock()
	c.notify = fn
	c.mu.Unlock()
}

// Snapshot returns a read-only projection of the session record.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:         c.state,
		Step:          c.step,
		TestID:        c.testID,
		IsActive:      c.state == StateActive,
		IsCompleted:   c.state == StateCompleted,
		TimeElapsed:   c.elapsed,
		TimeRemaining: c.remainingLocked(),
		Error:         c.errMsg,
		Result:        c.result,
	}
}

// remainingLocked derives the current remaining seconds from the last
// fetch's anchor. Caller holds c.mu.
func (c *Controller) remainingLocked() int {
	if !c.hasRemaining {
		return 0
	}
	r := c.remainingAtFetch - (c.elapsed - c.fetchElapsed)
	if r < 0 {
		return 0
	}
	return r
}

// Start begins a new attempt at the given step. Valid from NotStarted,
// Completed, or Error; starting over a completed session resets it first.
// An invalid step is rejected before any remote call is attempted.
func (c *Controller) Start(ctx context.Context, step model.Step) (*model.StartView, error) {
	if !step.Valid() {
		return nil, ErrInvalidStep
	}

	c.mu.Lock()
	switch c.state {
	case StateNotStarted, StateCompleted, StateError:
	default:
		c.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	c.resetLocked()
	c.state = StateStarting
	c.step = step
	gen := c.gen
	c.mu.Unlock()

	sv, err := c.svc.Start(ctx, c.userID, step)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil, ErrSuperseded
	}
	if err != nil {
		c.state = StateError
		c.errMsg = err.Error()
		c.mu.Unlock()
		return nil, err
	}
	c.testID = sv.TestID
	c.state = StateActive
	c.elapsed = 0
	c.timer.Reset(0)
	c.timer.Start()
	c.monitor.Arm()
	c.mu.Unlock()

	c.log.Info().Str("test_id", sv.TestID).Int("step", int(step)).Msg("Assessment session started")
	return sv, nil
}

// adopt rehydrates the controller into Active for an attempt that already
// exists server-side (server restart, reconnect from another tab).
func (c *Controller) adopt(testID string, step model.Step, elapsed int) {
	c.mu.Lock()
	c.resetLocked()
	c.state = StateActive
	c.step = step
	c.testID = testID
	c.elapsed = elapsed
	c.timer.Reset(elapsed)
	c.timer.Start()
	c.monitor.Arm()
	c.mu.Unlock()

	c.log.Info().Str("test_id", testID).Int("elapsed", elapsed).Msg("Assessment session resumed")
}

// FetchCurrentQuestion returns the attempt's current question. Repeated
// calls before a submission return the same question; every call refreshes
// the authoritative time-remaining value, and the latest completed fetch
// wins regardless of issue order. A fetch that reports no question, or a
// non-positive time remaining, drives the session toward completion.
func (c *Controller) FetchCurrentQuestion(ctx context.Context) (*model.CurrentQuestionView, error) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return nil, ErrNotActive
	}
	testID := c.testID
	gen := c.gen
	c.mu.Unlock()

	cq, err := c.svc.CurrentQuestion(ctx, testID)

	c.mu.Lock()
	if c.gen != gen || c.testID != testID {
		c.mu.Unlock()
		return nil, ErrSuperseded
	}
	if err != nil {
		// Fail closed but retryable: the session stays Active and the
		// caller re-invokes the fetch.
		c.errMsg = err.Error()
		c.mu.Unlock()
		return nil, err
	}
	c.errMsg = ""
	c.current = cq
	c.remainingAtFetch = cq.Progress.TimeRemaining
	c.fetchElapsed = c.elapsed
	c.hasRemaining = true
	stillActive := c.state == StateActive
	c.mu.Unlock()

	if stillActive {
		if cq.Progress.TimeRemaining <= 0 {
			if _, cerr := c.Complete(ctx, model.CompletionTimeout); cerr != nil && cerr != ErrNotActive {
				c.log.Error().Err(cerr).Msg("Timeout completion failed")
			}
		} else if cq.Question == nil {
			if _, cerr := c.Complete(ctx, model.CompletionFinished); cerr != nil && cerr != ErrNotActive {
				c.log.Error().Err(cerr).Msg("Final-question completion failed")
			}
		}
	}

	return cq, nil
}

// SubmitAnswer submits the selected option index for the current question.
// Submissions are single-flight: a second call while one is outstanding is
// rejected, not queued, so a double-click can never advance twice. On
// success the caller sees the correctness flag and the controller performs
// the deliberate second round-trip that loads the next question and
// refreshes the time remaining.
func (c *Controller) SubmitAnswer(ctx context.Context, selectedIndex, timeSpent int) (*model.SubmitAnswerView, error) {
	if !c.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInFlight
	}
	defer c.submitting.Store(false)

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return nil, ErrNotActive
	}
	if c.current == nil || c.current.Question == nil {
		c.mu.Unlock()
		return nil, ErrNoCurrentQuestion
	}
	testID := c.testID
	questionID := c.current.Question.ID
	gen := c.gen
	c.mu.Unlock()

	res, err := c.svc.SubmitAnswer(ctx, testID, questionID, selectedIndex, timeSpent)

	c.mu.Lock()
	if c.gen != gen || c.testID != testID {
		c.mu.Unlock()
		return nil, ErrSuperseded
	}
	if err != nil {
		c.errMsg = err.Error()
		c.mu.Unlock()
		return nil, err
	}
	c.errMsg = ""
	c.mu.Unlock()

	if _, ferr := c.FetchCurrentQuestion(ctx); ferr != nil && ferr != ErrSuperseded && ferr != ErrNotActive {
		// The submission itself succeeded; the caller retries the fetch.
		c.log.Warn().Err(ferr).Str("test_id", testID).Msg("Post-submit fetch failed")
	}

	return res, nil
}

// Complete drives the session to its terminal state. It is safe to invoke
// concurrently from the timer-expiry, security-violation, and manual paths:
// exactly one caller performs the remote completion, and everyone observes
// the same terminal result. Completion fails open: on a remote error the
// session still reaches Completed, with zeroed results and the error
// logged. The authoritative record stays server-side.
func (c *Controller) Complete(ctx context.Context, reason model.CompletionReason) (*model.CompletionView, error) {
	c.mu.Lock()
	switch c.state {
	case StateCompleted:
		res := c.result
		c.mu.Unlock()
		return res, nil
	case StateCompleting:
		done := c.completeDone
		c.mu.Unlock()
		return c.awaitCompletion(ctx, done)
	case StateActive:
	default:
		c.mu.Unlock()
		return nil, ErrNotActive
	}
	if !c.completing.CompareAndSwap(false, true) {
		done := c.completeDone
		c.mu.Unlock()
		return c.awaitCompletion(ctx, done)
	}
	done := make(chan struct{})
	c.completeDone = done
	c.state = StateCompleting
	testID := c.testID
	elapsed := c.elapsed
	step := c.step
	gen := c.gen
	c.timer.Stop()
	c.monitor.Disarm()
	c.mu.Unlock()

	res, err := c.svc.Complete(ctx, testID, elapsed, reason)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		close(done)
		return nil, ErrSuperseded
	}
	if err != nil {
		c.log.Error().Err(err).Str("test_id", testID).Str("reason", string(reason)).
			Msg("Remote completion failed; completing locally with empty results")
		res = &model.CompletionView{TestID: testID, Step: step}
	}
	c.result = res
	c.state = StateCompleted
	c.mu.Unlock()
	close(done)

	c.emit(Event{Type: EventCompleted})
	c.log.Info().Str("test_id", testID).Str("reason", string(reason)).Msg("Assessment session completed")
	return res, nil
}

// awaitCompletion blocks a losing Complete caller until the winner reaches
// the terminal state, then reports the same result. A Reset racing the
// completion surfaces as ErrSuperseded.
func (c *Controller) awaitCompletion(ctx context.Context, done <-chan struct{}) (*model.CompletionView, error) {
	if done == nil {
		return nil, ErrSuperseded
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCompleted {
		return nil, ErrSuperseded
	}
	return c.result, nil
}

// Reset returns the controller to NotStarted from any state, clearing all
// session fields and discarding any in-flight results. Always succeeds.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

// resetLocked clears the session record. Caller holds c.mu.
func (c *Controller) resetLocked() {
	c.gen++
	c.state = StateNotStarted
	c.step = 0
	c.testID = ""
	c.elapsed = 0
	c.remainingAtFetch = 0
	c.fetchElapsed = 0
	c.hasRemaining = false
	c.errMsg = ""
	c.current = nil
	c.result = nil
	c.submitting.Store(false)
	c.completing.Store(false)
	c.completeDone = nil
	c.timer.Stop()
	c.timer.Reset(0)
	c.monitor.Disarm()
}

// ReportSignal feeds an integrity signal into the security monitor.
// Returns true when the signal latched a violation.
func (c *Controller) ReportSignal(reason model.ViolationReason) bool {
	c.mu.Lock()
	active := c.state == StateActive
	c.mu.Unlock()
	if !active {
		return false
	}
	return c.monitor.Signal(reason)
}

// MonitorState exposes the security monitor's state for diagnostics.
func (c *Controller) MonitorState() MonitorState {
	return c.monitor.State()
}

func (c *Controller) handleTick(elapsed int) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.elapsed = elapsed
	expired := c.hasRemaining && c.remainingLocked() <= 0
	c.mu.Unlock()

	c.emit(Event{Type: EventTick})

	if expired {
		if _, err := c.Complete(context.Background(), model.CompletionTimeout); err != nil && err != ErrNotActive {
			c.log.Error().Err(err).Msg("Timer-driven completion failed")
		}
	}
}

func (c *Controller) handleWarning(reason model.ViolationReason) {
	c.emit(Event{Type: EventWarning, Reason: reason})
}

func (c *Controller) handleAutoSubmit(reason model.ViolationReason) {
	if _, err := c.Complete(context.Background(), model.CompletionViolation); err != nil && err != ErrNotActive {
		c.log.Error().Err(err).Msg("Violation-driven completion failed")
		return
	}
	c.emit(Event{Type: EventAutoSubmitted, Reason: reason})
}

// emit delivers an event to the registered sink outside the lock.
func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	fn := c.notify
	ev.Snapshot = c.snapshotLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}
