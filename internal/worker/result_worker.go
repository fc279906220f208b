package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testschool/assessment-backend/internal/config"
	"github.com/testschool/assessment-backend/internal/repository"
)

// ResultWorker drains per-answer timing events and folds them into the
// attempt records. Events for the same attempt are aggregated per batch so
// one UPDATE covers any number of answers.
type ResultWorker struct {
	testRepo *repository.TestRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(testRepo *repository.TestRepository, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		testRepo: testRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "result_worker").Logger(),
	}
}

type timingEvent struct {
	TestID    string `json:"test_id"`
	TimeSpent int    `json:"time_spent"`
}

// Start runs the drain loop until the context is cancelled.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	buffer := make([]*timingEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistResultsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var event timingEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &event)
	}
}

// flushSafe aggregates the batch per attempt and applies a single batched
// update. Failed batches are requeued in aggregated form.
func (w *ResultWorker) flushSafe(ctx context.Context, batch []*timingEvent) {
	totals := make(map[uuid.UUID]int, len(batch))
	for _, e := range batch {
		id, err := uuid.Parse(e.TestID)
		if err != nil {
			w.log.Error().Str("test_id", e.TestID).Msg("Dropping timing event with invalid UUID")
			continue
		}
		totals[id] += e.TimeSpent
	}
	if len(totals) == 0 {
		return
	}

	ids := make([]uuid.UUID, 0, len(totals))
	seconds := make([]int, 0, len(totals))
	for id, secs := range totals {
		ids = append(ids, id)
		seconds = append(seconds, secs)
	}

	if err := w.testRepo.BatchAddTimeSpent(ctx, ids, seconds); err != nil {
		w.log.Error().Err(err).Int("attempts", len(ids)).Msg("Batch update failed, requeueing")
		w.requeue(ctx, ids, seconds)
	}
}

func (w *ResultWorker) requeue(ctx context.Context, ids []uuid.UUID, seconds []int) {
	pipe := w.rdb.Pipeline()
	for i, id := range ids {
		data, _ := json.Marshal(timingEvent{TestID: id.String(), TimeSpent: seconds[i]})
		pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(ids)).Msg("Requeued failed items back to Redis")
		time.Sleep(2 * time.Second)
	}
}

func (w *ResultWorker) shutdown(buffer []*timingEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
