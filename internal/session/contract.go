// Package session implements the assessment session core: an explicit
// state machine per attempt, a one-second wall-clock timer, and a security
// monitor with a one-shot violation latch. The package is transport
// agnostic: it drives the assessment service through the Service contract
// and never touches gin, pgx, or redis directly.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/testschool/assessment-backend/internal/model"
)

// Service is the assessment service contract the controller consumes.
// The production implementation is backed by PostgreSQL and Redis; tests
// substitute a stub.
type Service interface {
	// Start creates a new attempt for the user at the given step. Fails if
	// the user is ineligible (prior step-1 failure, unfinished prerequisite).
	Start(ctx context.Context, userID int, step model.Step) (*model.StartView, error)

	// CurrentQuestion returns the attempt's current question together with
	// progress and navigation data. It is idempotent and side-effect free;
	// the Question field is nil once the attempt has run out of questions.
	// Every call refreshes the authoritative time-remaining value.
	CurrentQuestion(ctx context.Context, testID string) (*model.CurrentQuestionView, error)

	// SubmitAnswer records the answer for the current question and advances
	// the server-side pointer. It does not return the next question.
	SubmitAnswer(ctx context.Context, testID, questionID string, selectedIndex, timeSpent int) (*model.SubmitAnswerView, error)

	// Complete scores the attempt and returns the final result. The attempt
	// transitions to a terminal state server-side; repeated calls for an
	// already-completed attempt return the stored result.
	Complete(ctx context.Context, testID string, totalTimeSpent int, reason model.CompletionReason) (*model.CompletionView, error)
}

// Config carries the session policy knobs. Both values are policy choices
// rather than architectural ones, so they stay overridable (tests shrink
// them aggressively).
type Config struct {
	// TickInterval is the timer tick period. Defaults to one second.
	TickInterval time.Duration
	// ViolationGrace is the delay between a latched violation and the
	// forced submission, so the candidate sees the warning first.
	// Defaults to DefaultViolationGrace.
	ViolationGrace time.Duration
}

// DefaultViolationGrace is the default warning-to-forced-submission delay.
const DefaultViolationGrace = 2 * time.Second

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.ViolationGrace <= 0 {
		c.ViolationGrace = DefaultViolationGrace
	}
	return c
}

// Sentinel errors returned by controller operations.
var (
	ErrInvalidStep        = errors.New("step must be 1, 2, or 3")
	ErrAlreadyStarted     = errors.New("session already started")
	ErrNotActive          = errors.New("session is not active")
	ErrNoCurrentQuestion  = errors.New("no current question to answer")
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrSuperseded         = errors.New("session was reset or replaced; result discarded")
)

// State enumerates the controller's explicit states.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateStarting   State = "STARTING"
	StateActive     State = "ACTIVE"
	StateCompleting State = "COMPLETING"
	StateCompleted  State = "COMPLETED"
	StateError      State = "ERROR"
)

// EventType tags controller events pushed to an optional sink (the
// WebSocket stream subscribes to these).
type EventType string

const (
	EventTick          EventType = "tick"
	EventWarning       EventType = "warning"
	EventAutoSubmitted EventType = "auto_submitted"
	EventCompleted     EventType = "completed"
)

// Event is a controller notification.
type Event struct {
	Type     EventType             `json:"event"`
	Reason   model.ViolationReason `json:"reason,omitempty"`
	Snapshot Snapshot              `json:"snapshot"`
}

// Snapshot is a read-only projection of the session record. Rendering is
// entirely decoupled from state transitions; handlers serve snapshots.
type Snapshot struct {
	State         State                 `json:"state"`
	Step          model.Step            `json:"step,omitempty"`
	TestID        string                `json:"test_id,omitempty"`
	IsActive      bool                  `json:"is_active"`
	IsCompleted   bool                  `json:"is_completed"`
	TimeElapsed   int                   `json:"time_elapsed"`
	TimeRemaining int                   `json:"time_remaining"`
	Error         string                `json:"error,omitempty"`
	Result        *model.CompletionView `json:"result,omitempty"`
}
