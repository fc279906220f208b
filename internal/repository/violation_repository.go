package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testschool/assessment-backend/internal/model"
)

// ViolationRepository handles integrity-violation audit reads. Writes go
// through the violation worker's batched queue, not through here.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// ListByTest retrieves all recorded signals for an attempt in order.
func (r *ViolationRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.ViolationEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, user_id, reason, forced, payload, recorded_at
		 FROM violation_events WHERE test_id = $1
		 ORDER BY recorded_at`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ViolationEvent
	for rows.Next() {
		var e model.ViolationEvent
		if err := rows.Scan(&e.ID, &e.TestID, &e.UserID, &e.Reason, &e.Forced, &e.Payload, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if events == nil {
		events = []model.ViolationEvent{}
	}
	return events, rows.Err()
}

// CountByUser counts signals recorded against the user across attempts.
func (r *ViolationRepository) CountByUser(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM violation_events WHERE user_id = $1`, userID,
	).Scan(&count)
	return count, err
}
