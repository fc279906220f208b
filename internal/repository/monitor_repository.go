package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testschool/assessment-backend/internal/model"
)

// LiveAttempt is one active attempt as shown on the supervisor screen.
type LiveAttempt struct {
	TestID            uuid.UUID  `json:"test_id"`
	UserID            int        `json:"user_id"`
	Name              string     `json:"name"`
	Step              model.Step `json:"step"`
	QuestionsAnswered int        `json:"questions_answered"`
	TotalQuestions    int        `json:"total_questions"`
	StartedAt         time.Time  `json:"started_at"`
	TimeLimitSeconds  int        `json:"time_limit_seconds"`
}

// MonitorRepository provides data access for live attempt monitoring.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListActiveAttempts returns all running attempts with holder names.
func (r *MonitorRepository) ListActiveAttempts(ctx context.Context) ([]LiveAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.user_id, u.name, t.step, t.questions_answered, t.total_questions,
		        t.started_at, t.time_limit_seconds
		 FROM tests t
		 JOIN users u ON t.user_id = u.id
		 WHERE t.status = 'ACTIVE'
		 ORDER BY t.started_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []LiveAttempt
	for rows.Next() {
		var a LiveAttempt
		if err := rows.Scan(&a.TestID, &a.UserID, &a.Name, &a.Step, &a.QuestionsAnswered,
			&a.TotalQuestions, &a.StartedAt, &a.TimeLimitSeconds); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if attempts == nil {
		attempts = []LiveAttempt{}
	}
	return attempts, rows.Err()
}

// GetViolationCounts returns the number of recorded integrity signals per
// attempt across all active tests.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT v.test_id, COUNT(*)
		 FROM violation_events v
		 JOIN tests t ON v.test_id = t.id
		 WHERE t.status = 'ACTIVE'
		 GROUP BY v.test_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}
