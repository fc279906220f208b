package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/repository"
)

// MonitorService orchestrates live attempt monitoring for supervisors.
type MonitorService struct {
	monitorRepo   *repository.MonitorRepository
	violationRepo *repository.ViolationRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, violationRepo *repository.ViolationRepository) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo, violationRepo: violationRepo}
}

// LiveSnapshot holds everything the supervisor screen refreshes on.
type LiveSnapshot struct {
	Attempts        []repository.LiveAttempt `json:"attempts"`
	ViolationCounts map[uuid.UUID]int64      `json:"violation_counts"`
	TotalViolations int64                    `json:"total_violations"`
}

// GetLiveSnapshot fetches active attempts and their violation counts. The
// two fetches run in parallel; attempts are critical, violation counts are
// best-effort.
func (s *MonitorService) GetLiveSnapshot(ctx context.Context) (*LiveSnapshot, error) {
	var (
		attempts    []repository.LiveAttempt
		counts      map[uuid.UUID]int64
		attemptsErr error
		countsErr   error
		wg          sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		attempts, attemptsErr = s.monitorRepo.ListActiveAttempts(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		counts, countsErr = s.monitorRepo.GetViolationCounts(ctx)
	}()

	wg.Wait()

	if attemptsErr != nil {
		return nil, attemptsErr
	}

	snapshot := &LiveSnapshot{
		Attempts:        attempts,
		ViolationCounts: make(map[uuid.UUID]int64),
	}
	if countsErr == nil && counts != nil {
		snapshot.ViolationCounts = counts
		for _, c := range counts {
			snapshot.TotalViolations += c
		}
	}
	return snapshot, nil
}

// ListViolations retrieves the recorded integrity signals for an attempt.
func (s *MonitorService) ListViolations(ctx context.Context, testID uuid.UUID) ([]model.ViolationEvent, error) {
	return s.violationRepo.ListByTest(ctx, testID)
}

// CountUserViolations counts signals against a user across all attempts.
func (s *MonitorService) CountUserViolations(ctx context.Context, userID int) (int, error) {
	return s.violationRepo.CountByUser(ctx, userID)
}
