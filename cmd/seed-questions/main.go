package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/testschool/assessment-backend/internal/config"
	"github.com/testschool/assessment-backend/internal/database"
	"github.com/testschool/assessment-backend/internal/logger"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/repository"
)

// questionsPerLevel must stay comfortably above QuestionsPerStep so every
// step can sample a fresh set.
const questionsPerLevel = 60

var competencies = []model.Competency{
	{Name: "Information and Data Literacy", Description: "Searching, filtering, and evaluating digital information and data."},
	{Name: "Communication and Collaboration", Description: "Interacting, sharing, and collaborating through digital technologies."},
	{Name: "Digital Content Creation", Description: "Developing, integrating, and re-elaborating digital content."},
	{Name: "Safety", Description: "Protecting devices, personal data, privacy, health, and the environment."},
	{Name: "Problem Solving", Description: "Identifying needs and resolving technical problems with digital tools."},
}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	competencyRepo := repository.NewCompetencyRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	fmt.Println("=== Seeding Question Bank ===")

	existing, err := competencyRepo.List(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list competencies")
	}
	byName := make(map[string]model.Competency, len(existing))
	for _, c := range existing {
		byName[c.Name] = c
	}

	seeded := make([]model.Competency, 0, len(competencies))
	for _, c := range competencies {
		if found, ok := byName[c.Name]; ok {
			fmt.Printf("Competency %q already present\n", c.Name)
			seeded = append(seeded, found)
			continue
		}
		competency := c
		if err := competencyRepo.Create(ctx, &competency); err != nil {
			log.Fatal().Err(err).Str("name", c.Name).Msg("Failed to create competency")
		}
		fmt.Printf("Created competency %q\n", competency.Name)
		seeded = append(seeded, competency)
	}

	levels := []model.Level{
		model.LevelA1, model.LevelA2,
		model.LevelB1, model.LevelB2,
		model.LevelC1, model.LevelC2,
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	total := 0

	for _, level := range levels {
		for i := 0; i < questionsPerLevel; i++ {
			competency := seeded[i%len(seeded)]
			question := &model.Question{
				CompetencyID: competency.ID,
				Level:        level,
				QuestionText: fmt.Sprintf("[%s] %s sample question %d: which option is correct?", level, competency.Name, i+1),
				Options: []string{
					"The first option",
					"The second option",
					"The third option",
					"The fourth option",
				},
				CorrectOption: rng.Intn(4),
				Difficulty:    1 + i%5,
				IsActive:      true,
			}
			if err := questionRepo.Create(ctx, question); err != nil {
				log.Fatal().Err(err).Str("level", string(level)).Msg("Failed to create question")
			}
			total++
		}
		fmt.Printf("Seeded %d questions for level %s\n", questionsPerLevel, level)
	}

	fmt.Printf("\nSeed completed! Added %d questions across %d levels.\n", total, len(levels))
}
