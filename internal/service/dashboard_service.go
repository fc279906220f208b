package service

import (
	"context"

	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/repository"
)

// DashboardData consolidates all metrics for the admin dashboard.
type DashboardData struct {
	TotalUsers             int                          `json:"total_users"`
	ActiveTests            int                          `json:"active_tests"`
	CompletedTests         int                          `json:"completed_tests"`
	CertificatesIssued     int                          `json:"certificates_issued"`
	LevelDistribution      map[model.Level]int          `json:"level_distribution"`
	CompletionReasonCounts map[model.CompletionReason]int `json:"completion_reason_counts"`
	AverageScoreByStep     map[model.Step]float64       `json:"average_score_by_step"`
}

// DashboardService handles admin dashboard business logic.
type DashboardService struct {
	repo *repository.DashboardRepository
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(repo *repository.DashboardRepository) *DashboardService {
	return &DashboardService{repo: repo}
}

// GetDashboardData fetches all dashboard metrics.
func (s *DashboardService) GetDashboardData(ctx context.Context) (*DashboardData, error) {
	users, active, completed, certs, err := s.repo.GetSummaryCounts(ctx)
	if err != nil {
		return nil, err
	}

	levels, err := s.repo.GetLevelDistribution(ctx)
	if err != nil {
		return nil, err
	}

	reasons, err := s.repo.GetCompletionReasonCounts(ctx)
	if err != nil {
		return nil, err
	}

	averages, err := s.repo.GetAverageScoreByStep(ctx)
	if err != nil {
		return nil, err
	}

	return &DashboardData{
		TotalUsers:             users,
		ActiveTests:            active,
		CompletedTests:         completed,
		CertificatesIssued:     certs,
		LevelDistribution:      levels,
		CompletionReasonCounts: reasons,
		AverageScoreByStep:     averages,
	}, nil
}
