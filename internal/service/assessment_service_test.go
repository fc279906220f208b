package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/testschool/assessment-backend/internal/config"
	"github.com/testschool/assessment-backend/internal/model"
)

func scoringService(t *testing.T) *AssessmentService {
	t.Helper()
	return &AssessmentService{
		cfg: &config.Config{RetakeThresholdPercent: 25},
	}
}

func TestMapScoreBands(t *testing.T) {
	s := scoringService(t)

	tests := []struct {
		name         string
		step         model.Step
		score        float64
		level        model.Level
		canProceed   bool
		blocksRetake bool
	}{
		{"step1 below threshold fails and blocks retake", model.StepOne, 24.9, model.LevelFail, false, true},
		{"step1 exactly at threshold maps to lower level", model.StepOne, 25, model.LevelA1, false, false},
		{"step1 just under 50 stays at lower level", model.StepOne, 49.9, model.LevelA1, false, false},
		{"step1 mid band unlocks step 2", model.StepOne, 50, model.LevelA1, true, false},
		{"step1 upper band awards A2", model.StepOne, 75, model.LevelA2, true, false},
		{"step1 perfect score awards A2", model.StepOne, 100, model.LevelA2, true, false},
		{"step2 failure does not block retake", model.StepTwo, 10, model.LevelFail, false, false},
		{"step2 upper band awards B2", model.StepTwo, 80, model.LevelB2, true, false},
		{"step3 mid band awards C1 with nothing to unlock", model.StepThree, 60, model.LevelC1, false, false},
		{"step3 upper band awards C2 with nothing to unlock", model.StepThree, 90, model.LevelC2, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, canProceed, blocksRetake := s.mapScore(tt.step, tt.score)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.canProceed, canProceed)
			assert.Equal(t, tt.blocksRetake, blocksRetake)
		})
	}
}

func TestMapScoreRespectsConfiguredThreshold(t *testing.T) {
	s := &AssessmentService{cfg: &config.Config{RetakeThresholdPercent: 40}}

	level, _, blocksRetake := s.mapScore(model.StepOne, 30)
	assert.Equal(t, model.LevelFail, level)
	assert.True(t, blocksRetake)

	level, _, blocksRetake = s.mapScore(model.StepOne, 40)
	assert.Equal(t, model.LevelA1, level)
	assert.False(t, blocksRetake)
}

func TestStepLevels(t *testing.T) {
	assert.Equal(t, [2]model.Level{model.LevelA1, model.LevelA2}, model.StepOne.Levels())
	assert.Equal(t, [2]model.Level{model.LevelB1, model.LevelB2}, model.StepTwo.Levels())
	assert.Equal(t, [2]model.Level{model.LevelC1, model.LevelC2}, model.StepThree.Levels())

	assert.True(t, model.StepOne.Valid())
	assert.True(t, model.StepThree.Valid())
	assert.False(t, model.Step(0).Valid())
	assert.False(t, model.Step(4).Valid())
}
