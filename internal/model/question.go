package model

import (
	"time"

	"github.com/google/uuid"
)

// Question represents a question-bank entry. CorrectOption is the index
// into Options; option identity is array position.
type Question struct {
	ID            uuid.UUID `json:"id"`
	CompetencyID  uuid.UUID `json:"competency_id"`
	Level         Level     `json:"level"`
	QuestionText  string    `json:"question_text"`
	Options       []string  `json:"options"`
	CorrectOption int       `json:"correct_option"`
	Difficulty    int       `json:"difficulty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// QuestionView is the display projection sent to candidates: no correct
// index, competency resolved to its name.
type QuestionView struct {
	ID           string   `json:"id"`
	Competency   string   `json:"competency"`
	Level        Level    `json:"level"`
	QuestionText string   `json:"question_text"`
	Options      []string `json:"options"`
}

// CreateQuestionRequest is the admin payload for adding a question.
type CreateQuestionRequest struct {
	CompetencyID  string   `json:"competency_id" binding:"required,uuid"`
	Level         Level    `json:"level" binding:"required,oneof=A1 A2 B1 B2 C1 C2"`
	QuestionText  string   `json:"question_text" binding:"required,min=1,max=2000"`
	Options       []string `json:"options" binding:"required,min=2,max=8,dive,required,max=500"`
	CorrectOption int      `json:"correct_option" binding:"min=0"`
	Difficulty    int      `json:"difficulty" binding:"omitempty,min=1,max=5"`
}

// UpdateQuestionRequest is the admin payload for editing a question.
type UpdateQuestionRequest struct {
	QuestionText  string   `json:"question_text" binding:"omitempty,min=1,max=2000"`
	Options       []string `json:"options" binding:"omitempty,min=2,max=8,dive,required,max=500"`
	CorrectOption *int     `json:"correct_option" binding:"omitempty,min=0"`
	Difficulty    *int     `json:"difficulty" binding:"omitempty,min=1,max=5"`
	IsActive      *bool    `json:"is_active" binding:"omitempty"`
}
