package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testschool/assessment-backend/internal/model"
)

// DashboardRepository handles admin dashboard data access.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// GetSummaryCounts retrieves the high-level metrics for the dashboard.
func (r *DashboardRepository) GetSummaryCounts(ctx context.Context) (totalUsers, activeTests, completedTests, certificatesIssued int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM tests WHERE status = 'ACTIVE'),
			(SELECT COUNT(*) FROM tests WHERE status = 'COMPLETED'),
			(SELECT COUNT(*) FROM certificates)`,
	).Scan(&totalUsers, &activeTests, &completedTests, &certificatesIssued)
	return
}

// GetLevelDistribution retrieves how many completed attempts landed on each
// achieved level, the failure sentinel included.
func (r *DashboardRepository) GetLevelDistribution(ctx context.Context) (map[model.Level]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT level_achieved, COUNT(*) FROM tests
		 WHERE status = 'COMPLETED' AND level_achieved IS NOT NULL
		 GROUP BY level_achieved`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Level]int)
	for rows.Next() {
		var level model.Level
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		counts[level] = count
	}
	return counts, rows.Err()
}

// GetCompletionReasonCounts retrieves the distribution of completion
// reasons, which surfaces how often violations and timeouts end attempts.
func (r *DashboardRepository) GetCompletionReasonCounts(ctx context.Context) (map[model.CompletionReason]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT completion_reason, COUNT(*) FROM tests
		 WHERE status = 'COMPLETED' AND completion_reason IS NOT NULL
		 GROUP BY completion_reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.CompletionReason]int)
	for rows.Next() {
		var reason model.CompletionReason
		var count int
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, err
		}
		counts[reason] = count
	}
	return counts, rows.Err()
}

// GetAverageScoreByStep retrieves the mean score per step.
func (r *DashboardRepository) GetAverageScoreByStep(ctx context.Context) (map[model.Step]float64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT step, AVG(score) FROM tests
		 WHERE status = 'COMPLETED' AND score IS NOT NULL
		 GROUP BY step`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	averages := make(map[model.Step]float64)
	for rows.Next() {
		var step model.Step
		var avg float64
		if err := rows.Scan(&step, &avg); err != nil {
			return nil, err
		}
		averages[step] = avg
	}
	return averages, rows.Err()
}
