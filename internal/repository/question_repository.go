package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testschool/assessment-backend/internal/model"
)

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// SampleIDsForLevels draws a random sample of active question ids tagged
// with any of the given levels. Used to build an attempt's question order.
func (r *QuestionRepository) SampleIDsForLevels(ctx context.Context, levels []model.Level, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM questions
		 WHERE is_active AND level = ANY($1)
		 ORDER BY RANDOM()
		 LIMIT $2`, levelStrings(levels), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountActiveForLevels counts active questions tagged with the levels.
func (r *QuestionRepository) CountActiveForLevels(ctx context.Context, levels []model.Level) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE is_active AND level = ANY($1)`, levelStrings(levels),
	).Scan(&count)
	return count, err
}

func levelStrings(levels []model.Level) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}

// GetByID retrieves a question including the correct option index.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, competency_id, level, question_text, options, correct_option, difficulty, is_active, created_at, updated_at
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.CompetencyID, &q.Level, &q.QuestionText, &q.Options, &q.CorrectOption, &q.Difficulty, &q.IsActive, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// GetView retrieves the candidate-facing projection of a question: the
// correct index stays server-side and the competency resolves to its name.
func (r *QuestionRepository) GetView(ctx context.Context, id uuid.UUID) (*model.QuestionView, error) {
	v := &model.QuestionView{}
	err := r.pool.QueryRow(ctx,
		`SELECT q.id, c.name, q.level, q.question_text, q.options
		 FROM questions q
		 JOIN competencies c ON q.competency_id = c.id
		 WHERE q.id = $1`, id,
	).Scan(&v.ID, &v.Competency, &v.Level, &v.QuestionText, &v.Options)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (competency_id, level, question_text, options, correct_option, difficulty, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		q.CompetencyID, q.Level, q.QuestionText, q.Options, q.CorrectOption, q.Difficulty, q.IsActive,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
}

// Update overwrites the question's editable fields.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE questions
		 SET question_text = $1, options = $2, correct_option = $3, difficulty = $4, is_active = $5, updated_at = NOW()
		 WHERE id = $6`,
		q.QuestionText, q.Options, q.CorrectOption, q.Difficulty, q.IsActive, q.ID)
	return err
}

// Delete removes a question from the bank.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	return err
}

// List retrieves questions with optional level and competency filters,
// paginated, newest first.
func (r *QuestionRepository) List(ctx context.Context, page, perPage int, level *model.Level, competencyID *uuid.UUID) ([]model.Question, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := ` FROM questions WHERE 1=1`
	args := []any{}

	if level != nil {
		args = append(args, *level)
		baseQuery += fmt.Sprintf(" AND level = $%d", len(args))
	}
	if competencyID != nil {
		args = append(args, *competencyID)
		baseQuery += fmt.Sprintf(" AND competency_id = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, competency_id, level, question_text, options, correct_option, difficulty, is_active, created_at, updated_at` +
		baseQuery + ` ORDER BY created_at DESC` +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.CompetencyID, &q.Level, &q.QuestionText, &q.Options, &q.CorrectOption, &q.Difficulty, &q.IsActive, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, 0, err
		}
		questions = append(questions, q)
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, total, rows.Err()
}
