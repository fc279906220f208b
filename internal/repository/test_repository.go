package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testschool/assessment-backend/internal/model"
)

// ResultRow combines account data with a completed attempt, for the admin
// results listing and spreadsheet export.
type ResultRow struct {
	TestID           uuid.UUID               `json:"test_id"`
	UserID           int                     `json:"user_id"`
	Name             string                  `json:"name"`
	Email            string                  `json:"email"`
	Step             model.Step              `json:"step"`
	Score            *float64                `json:"score"`
	LevelAchieved    *model.Level            `json:"level_achieved"`
	CompletionReason *model.CompletionReason `json:"completion_reason"`
	StartedAt        time.Time               `json:"started_at"`
	CompletedAt      *time.Time              `json:"completed_at"`
}

// TestRepository handles assessment attempt data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// Create inserts a new attempt with its frozen question order.
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO tests (user_id, step, status, question_order, total_questions, time_limit_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, started_at`,
		t.UserID, t.Step, model.TestStatusActive, t.QuestionOrder, t.TotalQuestions, t.TimeLimitSeconds,
	).Scan(&t.ID, &t.StartedAt)
}

// GetByID retrieves an attempt by id.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, step, status, question_order, current_index, questions_answered,
		        total_questions, time_limit_seconds, time_spent_seconds, started_at, completed_at,
		        score, level_achieved, can_proceed, blocks_retake, certificate_id, completion_reason
		 FROM tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.UserID, &t.Step, &t.Status, &t.QuestionOrder, &t.CurrentIndex, &t.QuestionsAnswered,
		&t.TotalQuestions, &t.TimeLimitSeconds, &t.TimeSpentSeconds, &t.StartedAt, &t.CompletedAt,
		&t.Score, &t.LevelAchieved, &t.CanProceed, &t.BlocksRetake, &t.CertificateID, &t.CompletionReason)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetActiveByUser retrieves the user's running attempt, if any.
func (r *TestRepository) GetActiveByUser(ctx context.Context, userID int) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, step, status, question_order, current_index, questions_answered,
		        total_questions, time_limit_seconds, time_spent_seconds, started_at, completed_at,
		        score, level_achieved, can_proceed, blocks_retake, certificate_id, completion_reason
		 FROM tests WHERE user_id = $1 AND status = $2`, userID, model.TestStatusActive,
	).Scan(&t.ID, &t.UserID, &t.Step, &t.Status, &t.QuestionOrder, &t.CurrentIndex, &t.QuestionsAnswered,
		&t.TotalQuestions, &t.TimeLimitSeconds, &t.TimeSpentSeconds, &t.StartedAt, &t.CompletedAt,
		&t.Score, &t.LevelAchieved, &t.CanProceed, &t.BlocksRetake, &t.CertificateID, &t.CompletionReason)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// HasRetakeBlock reports whether a failed step-1 attempt blocks the user
// from starting again.
func (r *TestRepository) HasRetakeBlock(ctx context.Context, userID int) (bool, error) {
	var blocked bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM tests
		   WHERE user_id = $1 AND status = $2 AND blocks_retake
		 )`, userID, model.TestStatusCompleted,
	).Scan(&blocked)
	return blocked, err
}

// CanProceedFromStep reports whether the user has a completed attempt at
// the step that unlocked progression to the next one.
func (r *TestRepository) CanProceedFromStep(ctx context.Context, userID int, step model.Step) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM tests
		   WHERE user_id = $1 AND step = $2 AND status = $3 AND can_proceed
		 )`, userID, step, model.TestStatusCompleted,
	).Scan(&ok)
	return ok, err
}

// LatestLevel returns the user's most recent non-sentinel achieved level,
// or nil when no attempt has produced one.
func (r *TestRepository) LatestLevel(ctx context.Context, userID int) (*model.Level, error) {
	var level *model.Level
	err := r.pool.QueryRow(ctx,
		`SELECT level_achieved FROM tests
		 WHERE user_id = $1 AND status = $2 AND level_achieved IS NOT NULL AND level_achieved <> $3
		 ORDER BY completed_at DESC LIMIT 1`,
		userID, model.TestStatusCompleted, model.LevelFail,
	).Scan(&level)
	if err != nil {
		return nil, err
	}
	return level, nil
}

// RecordResponse stores the answer for one question of an attempt. The
// (test_id, question_id) pair is unique, so only the first submission for a
// question takes effect; it reports whether this call was the effective one.
func (r *TestRepository) RecordResponse(ctx context.Context, testID, questionID uuid.UUID, selectedOption int, isCorrect bool, timeSpent int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO test_responses (test_id, question_id, selected_option, is_correct, time_spent_seconds)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (test_id, question_id) DO NOTHING`,
		testID, questionID, selectedOption, isCorrect, timeSpent)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AdvancePointer moves the attempt's current-question pointer forward by
// one, conditioned on the caller's observed index so concurrent submissions
// cannot double-advance. Returns whether the pointer moved.
func (r *TestRepository) AdvancePointer(ctx context.Context, testID uuid.UUID, fromIndex int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tests
		 SET current_index = current_index + 1, questions_answered = questions_answered + 1
		 WHERE id = $1 AND current_index = $2 AND status = $3`,
		testID, fromIndex, model.TestStatusActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountCorrect counts the attempt's correct responses.
func (r *TestRepository) CountCorrect(ctx context.Context, testID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM test_responses WHERE test_id = $1 AND is_correct`, testID,
	).Scan(&count)
	return count, err
}

// ClaimCompletion performs the ACTIVE → COMPLETING transition. Exactly one
// caller wins the claim; everyone else scores nothing.
func (r *TestRepository) ClaimCompletion(ctx context.Context, testID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tests SET status = $1 WHERE id = $2 AND status = $3`,
		model.TestStatusCompleting, testID, model.TestStatusActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseClaim reverts COMPLETING back to ACTIVE after a failed scoring
// pass, so a later completion attempt can run.
func (r *TestRepository) ReleaseClaim(ctx context.Context, testID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests SET status = $1 WHERE id = $2 AND status = $3`,
		model.TestStatusActive, testID, model.TestStatusCompleting)
	return err
}

// FinalizeCompletion writes the scored outcome and moves the attempt from
// COMPLETING to COMPLETED.
func (r *TestRepository) FinalizeCompletion(ctx context.Context, t *model.Test) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests
		 SET status = $1, score = $2, level_achieved = $3, can_proceed = $4, blocks_retake = $5,
		     certificate_id = $6, completion_reason = $7, time_spent_seconds = $8, completed_at = NOW()
		 WHERE id = $9 AND status = $10`,
		model.TestStatusCompleted, t.Score, t.LevelAchieved, t.CanProceed, t.BlocksRetake,
		t.CertificateID, t.CompletionReason, t.TimeSpentSeconds, t.ID, model.TestStatusCompleting)
	return err
}

// Abandon marks a running attempt as walked away from.
func (r *TestRepository) Abandon(ctx context.Context, testID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tests SET status = $1, completed_at = NOW() WHERE id = $2 AND status = $3`,
		model.TestStatusAbandoned, testID, model.TestStatusActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListExpiredActive finds running attempts whose deadline has passed.
// Safety net behind the Redis deadline index.
func (r *TestRepository) ListExpiredActive(ctx context.Context, limit int) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, step, status, question_order, current_index, questions_answered,
		        total_questions, time_limit_seconds, time_spent_seconds, started_at, completed_at,
		        score, level_achieved, can_proceed, blocks_retake, certificate_id, completion_reason
		 FROM tests
		 WHERE status = $1 AND started_at + make_interval(secs => time_limit_seconds) < NOW()
		 ORDER BY started_at
		 LIMIT $2`, model.TestStatusActive, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTests(rows)
}

// History retrieves the user's completed attempts, newest first.
func (r *TestRepository) History(ctx context.Context, userID int) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, step, status, question_order, current_index, questions_answered,
		        total_questions, time_limit_seconds, time_spent_seconds, started_at, completed_at,
		        score, level_achieved, can_proceed, blocks_retake, certificate_id, completion_reason
		 FROM tests
		 WHERE user_id = $1 AND status = $2
		 ORDER BY completed_at DESC`, userID, model.TestStatusCompleted,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTests(rows)
}

// BatchAddTimeSpent accumulates per-answer time onto attempts in one
// statement. Fed by the result worker's queue flush.
func (r *TestRepository) BatchAddTimeSpent(ctx context.Context, testIDs []uuid.UUID, seconds []int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests t
		 SET time_spent_seconds = t.time_spent_seconds + v.secs
		 FROM (SELECT UNNEST($1::uuid[]) AS id, UNNEST($2::int[]) AS secs) v
		 WHERE t.id = v.id AND t.status = $3`,
		testIDs, seconds, model.TestStatusActive)
	return err
}

// ListResults retrieves completed attempts joined with account data, with
// an optional step filter, paginated.
func (r *TestRepository) ListResults(ctx context.Context, page, perPage int, step *model.Step) ([]ResultRow, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := `
		FROM tests t
		JOIN users u ON t.user_id = u.id
		WHERE t.status = $1
	`
	args := []any{model.TestStatusCompleted}

	if step != nil {
		args = append(args, *step)
		baseQuery += fmt.Sprintf(" AND t.step = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT t.id, u.id, u.name, u.email, t.step, t.score, t.level_achieved,
	                 t.completion_reason, t.started_at, t.completed_at` +
		baseQuery + ` ORDER BY t.completed_at DESC` +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []ResultRow
	for rows.Next() {
		var row ResultRow
		if err := rows.Scan(&row.TestID, &row.UserID, &row.Name, &row.Email, &row.Step,
			&row.Score, &row.LevelAchieved, &row.CompletionReason, &row.StartedAt, &row.CompletedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, row)
	}
	if results == nil {
		results = []ResultRow{}
	}
	return results, total, rows.Err()
}

func scanTests(rows pgx.Rows) ([]model.Test, error) {
	var tests []model.Test
	for rows.Next() {
		var t model.Test
		if err := rows.Scan(&t.ID, &t.UserID, &t.Step, &t.Status, &t.QuestionOrder, &t.CurrentIndex, &t.QuestionsAnswered,
			&t.TotalQuestions, &t.TimeLimitSeconds, &t.TimeSpentSeconds, &t.StartedAt, &t.CompletedAt,
			&t.Score, &t.LevelAchieved, &t.CanProceed, &t.BlocksRetake, &t.CertificateID, &t.CompletionReason); err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	if tests == nil {
		tests = []model.Test{}
	}
	return tests, rows.Err()
}
