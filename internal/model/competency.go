package model

import (
	"time"

	"github.com/google/uuid"
)

// Level is one of the six proficiency tags a question is tagged with,
// plus the failure sentinel produced by a failed step-1 attempt.
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"

	// LevelFail is the failure sentinel: score below the step-1 retake
	// threshold. It never appears on a certificate.
	LevelFail Level = "FAIL"
)

// Step is one of three sequential assessment stages, each covering two
// competency levels.
type Step int

const (
	StepOne   Step = 1
	StepTwo   Step = 2
	StepThree Step = 3
)

// Valid reports whether the step is one of the three defined stages.
func (s Step) Valid() bool {
	return s >= StepOne && s <= StepThree
}

// Levels returns the two competency levels covered by the step.
// The step must be valid.
func (s Step) Levels() [2]Level {
	switch s {
	case StepOne:
		return [2]Level{LevelA1, LevelA2}
	case StepTwo:
		return [2]Level{LevelB1, LevelB2}
	default:
		return [2]Level{LevelC1, LevelC2}
	}
}

// Competency represents a digital competency questions are grouped under.
type Competency struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateCompetencyRequest is the admin payload for adding a competency.
type CreateCompetencyRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=255"`
	Description string `json:"description" binding:"omitempty,max=2000"`
}
