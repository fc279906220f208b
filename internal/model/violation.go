package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationReason tags an integrity-breaking action detected during an
// active attempt. ReasonContextMenu and ReasonUnloadAttempt are audit-only:
// they are recorded but never force a submission.
type ViolationReason string

const (
	ReasonTabSwitch     ViolationReason = "tab_switch"
	ReasonDevTools      ViolationReason = "devtools_attempt"
	ReasonViewSource    ViolationReason = "view_source_attempt"
	ReasonRefresh       ViolationReason = "refresh_attempt"
	ReasonContextMenu   ViolationReason = "context_menu"
	ReasonUnloadAttempt ViolationReason = "unload_attempt"
)

// Triggers reports whether the reason forces an auto-submission once armed.
func (r ViolationReason) Triggers() bool {
	switch r {
	case ReasonTabSwitch, ReasonDevTools, ReasonViewSource, ReasonRefresh:
		return true
	}
	return false
}

// Known reports whether the reason is one this platform understands.
func (r ViolationReason) Known() bool {
	switch r {
	case ReasonTabSwitch, ReasonDevTools, ReasonViewSource, ReasonRefresh,
		ReasonContextMenu, ReasonUnloadAttempt:
		return true
	}
	return false
}

// ViolationEvent is the audit record of a reported integrity signal.
type ViolationEvent struct {
	ID         int64           `json:"id"`
	TestID     uuid.UUID       `json:"test_id"`
	UserID     int             `json:"user_id"`
	Reason     ViolationReason `json:"reason"`
	Forced     bool            `json:"forced"`
	Payload    string          `json:"payload,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}
