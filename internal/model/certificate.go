package model

import (
	"time"

	"github.com/google/uuid"
)

// Certificate represents an issued competency certificate. One is produced
// on completion whenever the achieved level is not the failure sentinel.
type Certificate struct {
	ID            uuid.UUID `json:"id"`
	UserID        int       `json:"user_id"`
	TestID        uuid.UUID `json:"test_id"`
	LevelAchieved Level     `json:"level_achieved"`
	IssuedAt      time.Time `json:"issued_at"`
}
