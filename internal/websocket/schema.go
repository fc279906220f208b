package websocket

import (
	"encoding/json"

	"github.com/testschool/assessment-backend/internal/model"
)

// Action identifies a client-to-server message on the assessment stream.
type Action string

const (
	ActionViolation Action = "violation"
	ActionTimeSync  Action = "time_sync"
	ActionPing      Action = "ping"
)

// Event identifies a server-to-client message on the assessment stream.
type Event string

const (
	EventWarning       Event = "warning"
	EventAutoSubmitted Event = "auto_submitted"
	EventTimeSync      Event = "time_sync"
	EventCompleted     Event = "completed"
	EventError         Event = "error"
	EventPong          Event = "pong"
)

// RequestEnvelope wraps every inbound message. Payload decoding is
// deferred until the action is known.
type RequestEnvelope struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ViolationPayload is the payload for ActionViolation.
type ViolationPayload struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// WarningResponse is emitted once, when the violation latch fires.
type WarningResponse struct {
	Event        Event  `json:"event"`
	Reason       string `json:"reason"`
	GraceSeconds int    `json:"grace_seconds"`
}

// AutoSubmittedResponse is emitted after a forced submission completes.
type AutoSubmittedResponse struct {
	Event  Event  `json:"event"`
	TestID string `json:"test_id"`
	Reason string `json:"reason"`
}

// TimeSyncResponse carries the authoritative remaining time.
type TimeSyncResponse struct {
	Event           Event `json:"event"`
	TimeRemaining   int   `json:"time_remaining"`
	ElapsedSeconds  int   `json:"elapsed_seconds"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// CompletedResponse is emitted when the attempt reaches a terminal state.
type CompletedResponse struct {
	Event  Event                 `json:"event"`
	TestID string                `json:"test_id"`
	Result *model.CompletionView `json:"result,omitempty"`
}

// ErrorResponse reports a protocol or processing error to the client.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// PongResponse answers an ActionPing keepalive.
type PongResponse struct {
	Event           Event `json:"event"`
	ServerTimestamp int64 `json:"server_timestamp"`
}
