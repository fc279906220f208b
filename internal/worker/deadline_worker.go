package worker

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testschool/assessment-backend/internal/config"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/repository"
	"github.com/testschool/assessment-backend/internal/service"
)

const (
	deadlineScanInterval = 1 * time.Second
	sweepInterval        = 1 * time.Minute
	completeTimeout      = 10 * time.Second
	sweepBatchLimit      = 200
)

// DeadlineWorker force-completes attempts whose time limit has passed. The
// fast path scans the Redis deadline index every second; a slower
// PostgreSQL sweep catches attempts whose index entry was lost.
type DeadlineWorker struct {
	assessmentService *service.AssessmentService
	testRepo          *repository.TestRepository
	rdb               *redis.Client
	log               zerolog.Logger
}

// NewDeadlineWorker creates a new DeadlineWorker.
func NewDeadlineWorker(
	assessmentService *service.AssessmentService,
	testRepo *repository.TestRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *DeadlineWorker {
	return &DeadlineWorker{
		assessmentService: assessmentService,
		testRepo:          testRepo,
		rdb:               rdb,
		log:               log.With().Str("component", "deadline_worker").Logger(),
	}
}

// Start runs the expiry loops until the context is cancelled.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Msg("DeadlineWorker started")

	scanTicker := time.NewTicker(deadlineScanInterval)
	defer scanTicker.Stop()

	sweepTicker := time.NewTicker(sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("DeadlineWorker stopping")
			return
		case <-scanTicker.C:
			w.scanIndex(ctx)
		case <-sweepTicker.C:
			w.sweepDatabase(ctx)
		}
	}
}

// scanIndex completes every attempt whose deadline score is in the past.
func (w *DeadlineWorker) scanIndex(ctx context.Context) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	expired, err := w.rdb.ZRangeByScore(ctx, config.CacheKey.DeadlineIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("Deadline index scan failed")
		}
		return
	}

	for _, testID := range expired {
		w.expire(ctx, testID)
	}
}

// sweepDatabase catches active attempts past their limit that the index
// missed, such as after a Redis flush.
func (w *DeadlineWorker) sweepDatabase(ctx context.Context) {
	tests, err := w.testRepo.ListExpiredActive(ctx, sweepBatchLimit)
	if err != nil {
		w.log.Warn().Err(err).Msg("Expired attempt sweep failed")
		return
	}

	for _, test := range tests {
		w.expire(ctx, test.ID.String())
	}
}

// expire drives a single attempt to timeout completion. Completion is
// idempotent and claim-guarded, so racing an instance that is already
// completing the attempt is harmless.
func (w *DeadlineWorker) expire(parentCtx context.Context, testID string) {
	ctx, cancel := context.WithTimeout(parentCtx, completeTimeout)
	defer cancel()

	_, err := w.assessmentService.Complete(ctx, testID, 0, model.CompletionTimeout)
	switch {
	case err == nil:
		w.log.Info().Str("test_id", testID).Msg("Attempt timed out, force-completed")
	case errors.Is(err, service.ErrCompletionInProgress):
		// Another instance holds the claim.
	case errors.Is(err, service.ErrAttemptNotFound), errors.Is(err, service.ErrAttemptNotActive):
		// Already terminal; just drop the index entry below.
	default:
		w.log.Error().Err(err).Str("test_id", testID).Msg("Forced completion failed, will retry")
		return
	}

	if err := w.rdb.ZRem(ctx, config.CacheKey.DeadlineIndexKey(), testID).Err(); err != nil {
		w.log.Warn().Err(err).Str("test_id", testID).Msg("Failed to drop deadline index entry")
	}
}
