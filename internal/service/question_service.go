package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/repository"
	"github.com/testschool/assessment-backend/internal/response"
)

// Common question bank errors.
var (
	ErrQuestionNotFound      = errors.New("question not found")
	ErrCompetencyNotFound    = errors.New("competency not found")
	ErrCorrectOptionOutOfBounds = errors.New("correct option index outside the option list")
)

// QuestionService handles question bank business logic.
type QuestionService struct {
	questionRepo   *repository.QuestionRepository
	competencyRepo *repository.CompetencyRepository
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questionRepo *repository.QuestionRepository, competencyRepo *repository.CompetencyRepository) *QuestionService {
	return &QuestionService{questionRepo: questionRepo, competencyRepo: competencyRepo}
}

// ListCompetencies retrieves all competencies.
func (s *QuestionService) ListCompetencies(ctx context.Context) ([]model.Competency, error) {
	return s.competencyRepo.List(ctx)
}

// CreateCompetency adds a new competency.
func (s *QuestionService) CreateCompetency(ctx context.Context, req *model.CreateCompetencyRequest) (*model.Competency, error) {
	competency := &model.Competency{Name: req.Name, Description: req.Description}
	if err := s.competencyRepo.Create(ctx, competency); err != nil {
		return nil, err
	}
	return competency, nil
}

// DeleteCompetency removes a competency and its questions.
func (s *QuestionService) DeleteCompetency(ctx context.Context, id uuid.UUID) error {
	if _, err := s.competencyRepo.GetByID(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCompetencyNotFound
		}
		return err
	}
	return s.competencyRepo.Delete(ctx, id)
}

// List retrieves questions with pagination and optional filters.
func (s *QuestionService) List(ctx context.Context, page, perPage int, level *model.Level, competencyID *uuid.UUID) ([]model.Question, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	questions, total, err := s.questionRepo.List(ctx, page, perPage, level, competencyID)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (int(total) + perPage - 1) / perPage
	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages,
	}
	return questions, pagination, nil
}

// Create adds a question to the bank.
func (s *QuestionService) Create(ctx context.Context, req *model.CreateQuestionRequest) (*model.Question, error) {
	competencyID, err := uuid.Parse(req.CompetencyID)
	if err != nil {
		return nil, ErrCompetencyNotFound
	}
	if _, err := s.competencyRepo.GetByID(ctx, competencyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompetencyNotFound
		}
		return nil, err
	}
	if req.CorrectOption < 0 || req.CorrectOption >= len(req.Options) {
		return nil, ErrCorrectOptionOutOfBounds
	}

	difficulty := req.Difficulty
	if difficulty == 0 {
		difficulty = 3
	}

	question := &model.Question{
		CompetencyID:  competencyID,
		Level:         req.Level,
		QuestionText:  req.QuestionText,
		Options:       req.Options,
		CorrectOption: req.CorrectOption,
		Difficulty:    difficulty,
		IsActive:      true,
	}
	if err := s.questionRepo.Create(ctx, question); err != nil {
		return nil, err
	}
	return question, nil
}

// Update edits a question's fields, leaving unset ones alone.
func (s *QuestionService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateQuestionRequest) (*model.Question, error) {
	question, err := s.questionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}

	if req.QuestionText != "" {
		question.QuestionText = req.QuestionText
	}
	if req.Options != nil {
		question.Options = req.Options
	}
	if req.CorrectOption != nil {
		question.CorrectOption = *req.CorrectOption
	}
	if req.Difficulty != nil {
		question.Difficulty = *req.Difficulty
	}
	if req.IsActive != nil {
		question.IsActive = *req.IsActive
	}

	if question.CorrectOption < 0 || question.CorrectOption >= len(question.Options) {
		return nil, ErrCorrectOptionOutOfBounds
	}

	if err := s.questionRepo.Update(ctx, question); err != nil {
		return nil, err
	}
	return question, nil
}

// Delete removes a question from the bank.
func (s *QuestionService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.questionRepo.GetByID(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrQuestionNotFound
		}
		return err
	}
	return s.questionRepo.Delete(ctx, id)
}
