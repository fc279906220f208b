package model

import (
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates test attempt states as persisted. COMPLETING is a
// short-lived claim state: the transition ACTIVE → COMPLETING is a
// conditional update, so only one caller ever performs the scoring.
type TestStatus string

const (
	TestStatusActive     TestStatus = "ACTIVE"
	TestStatusCompleting TestStatus = "COMPLETING"
	TestStatusCompleted  TestStatus = "COMPLETED"
	TestStatusAbandoned  TestStatus = "ABANDONED"
)

// CompletionReason records what drove an attempt to completion.
type CompletionReason string

const (
	CompletionManual    CompletionReason = "manual"
	CompletionTimeout   CompletionReason = "timeout"
	CompletionViolation CompletionReason = "violation"
	CompletionFinished  CompletionReason = "finished"
)

// Test represents one assessment attempt by a user at a given step.
type Test struct {
	ID                uuid.UUID         `json:"id"`
	UserID            int               `json:"user_id"`
	Step              Step              `json:"step"`
	Status            TestStatus        `json:"status"`
	QuestionOrder     []string          `json:"-"`
	CurrentIndex      int               `json:"current_index"`
	QuestionsAnswered int               `json:"questions_answered"`
	TotalQuestions    int               `json:"total_questions"`
	TimeLimitSeconds  int               `json:"time_limit_seconds"`
	TimeSpentSeconds  int               `json:"time_spent_seconds"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	Score             *float64          `json:"score,omitempty"`
	LevelAchieved     *Level            `json:"level_achieved,omitempty"`
	CanProceed        bool              `json:"can_proceed_to_next_step"`
	BlocksRetake      bool              `json:"blocks_retake"`
	CertificateID     *uuid.UUID        `json:"certificate_id,omitempty"`
	CompletionReason  *CompletionReason `json:"completion_reason,omitempty"`
}

// StartTestRequest is the payload for starting an assessment step.
type StartTestRequest struct {
	Step int `json:"step" binding:"required"`
}

// SubmitAnswerRequest is the payload for answering the current question.
// SelectedOptionIndex is a pointer so index 0 survives required-validation.
type SubmitAnswerRequest struct {
	QuestionID          string `json:"question_id" binding:"required,uuid"`
	SelectedOptionIndex *int   `json:"selected_option_index" binding:"required,min=0"`
	TimeSpent           int    `json:"time_spent" binding:"min=0"`
}

// CompleteTestRequest is the payload for explicitly ending an attempt.
type CompleteTestRequest struct {
	TotalTimeSpent int `json:"total_time_spent" binding:"min=0"`
}

// StartView is returned when an attempt is started.
type StartView struct {
	TestID         string `json:"test_id"`
	Step           Step   `json:"step"`
	TotalQuestions int    `json:"total_questions"`
}

// TestProgress describes position and timing inside an active attempt.
// TimeRemaining is always the server-computed value; clients never derive it.
type TestProgress struct {
	CurrentIndex       int     `json:"current_index"`
	TotalQuestions     int     `json:"total_questions"`
	QuestionsAnswered  int     `json:"questions_answered"`
	ProgressPercentage float64 `json:"progress_percentage"`
	TimeRemaining      int     `json:"time_remaining"`
	IsLastQuestion     bool    `json:"is_last_question"`
	HasNextQuestion    bool    `json:"has_next_question"`
}

// Navigation carries capability flags for the current position.
type Navigation struct {
	CanGoNext     bool `json:"can_go_next"`
	CanGoPrevious bool `json:"can_go_previous"`
	CanSkip       bool `json:"can_skip"`
	CanSubmitTest bool `json:"can_submit_test"`
}

// CurrentQuestionView is the current-question response. Question is nil once
// the attempt has run out of questions; progress and navigation stay valid.
type CurrentQuestionView struct {
	Question   *QuestionView `json:"question"`
	Progress   TestProgress  `json:"test_progress"`
	Navigation Navigation    `json:"navigation"`
}

// SubmitAnswerView reports the outcome of an answer submission. It advances
// the server-side pointer but deliberately does not carry the next question.
type SubmitAnswerView struct {
	IsCorrect      bool `json:"is_correct"`
	NewIndex       int  `json:"current_question_index"`
	IsLastQuestion bool `json:"is_last_question"`
}

// CertificateRef points at an issued certificate.
type CertificateRef struct {
	ID            string `json:"id"`
	LevelAchieved Level  `json:"level_achieved"`
}

// CompletionView is the completion (and results re-read) response shape.
type CompletionView struct {
	TestID               string          `json:"test_id"`
	Step                 Step            `json:"step"`
	Score                float64         `json:"score"`
	LevelAchieved        Level           `json:"level_achieved"`
	CanProceedToNextStep bool            `json:"can_proceed_to_next_step"`
	BlocksRetake         bool            `json:"blocks_retake"`
	Certificate          *CertificateRef `json:"certificate,omitempty"`
}

// EligibilityView is the eligibility pre-check response.
type EligibilityView struct {
	Eligible     bool   `json:"eligible"`
	Step         Step   `json:"step"`
	CurrentLevel *Level `json:"current_level"`
	Reason       string `json:"reason,omitempty"`
}
