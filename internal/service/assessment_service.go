package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testschool/assessment-backend/internal/config"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/repository"
)

// Common assessment errors.
var (
	ErrInvalidStep          = errors.New("step must be 1, 2, or 3")
	ErrRetakeBlocked        = errors.New("a failed step-1 attempt blocks retaking the assessment")
	ErrNotEligible          = errors.New("previous step not passed with progression unlocked")
	ErrAttemptActive        = errors.New("an attempt is already in progress")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptNotActive     = errors.New("attempt is not active")
	ErrAttemptNotCompleted  = errors.New("attempt is not completed")
	ErrQuestionMismatch     = errors.New("submitted question is not the current question")
	ErrAlreadyAnswered      = errors.New("question already answered")
	ErrAnswerOutOfBounds    = errors.New("selected option index out of bounds")
	ErrInsufficientBank     = errors.New("question bank too small for this step")
	ErrCompletionInProgress = errors.New("completion already in progress")
)

// violationPayload is what gets queued for the violation worker.
type violationPayload struct {
	TestID    string `json:"test_id"`
	UserID    int    `json:"user_id"`
	Reason    string `json:"reason"`
	Forced    bool   `json:"forced"`
	Payload   string `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// resultPayload is what gets queued for the result worker: per-answer time
// accumulated onto the attempt in batches.
type resultPayload struct {
	TestID    string `json:"test_id"`
	TimeSpent int    `json:"time_spent"`
}

// AssessmentService owns the attempt lifecycle: eligibility, question
// order, answer recording, scoring, level mapping, and certificate
// issuance. It is the production implementation of the session core's
// Service contract. PostgreSQL is the source of truth; Redis carries the
// hot path (start time, duration, deadline index) and self-heals from
// PostgreSQL on a cache miss.
type AssessmentService struct {
	cfg      *config.Config
	testRepo *repository.TestRepository
	qRepo    *repository.QuestionRepository
	certRepo *repository.CertificateRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(
	cfg *config.Config,
	testRepo *repository.TestRepository,
	qRepo *repository.QuestionRepository,
	certRepo *repository.CertificateRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AssessmentService {
	return &AssessmentService{
		cfg:      cfg,
		testRepo: testRepo,
		qRepo:    qRepo,
		certRepo: certRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "assessment_service").Logger(),
	}
}

// Eligibility reports whether the user may start the given step, without
// side effects.
func (s *AssessmentService) Eligibility(ctx context.Context, userID int, step model.Step) (*model.EligibilityView, error) {
	if !step.Valid() {
		return nil, ErrInvalidStep
	}

	view := &model.EligibilityView{Step: step}

	level, err := s.testRepo.LatestLevel(ctx, userID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("latest level: %w", err)
	}
	view.CurrentLevel = level

	if err := s.checkEligible(ctx, userID, step); err != nil {
		switch {
		case errors.Is(err, ErrRetakeBlocked), errors.Is(err, ErrNotEligible), errors.Is(err, ErrAttemptActive):
			view.Eligible = false
			view.Reason = err.Error()
			return view, nil
		default:
			return nil, err
		}
	}

	view.Eligible = true
	return view, nil
}

func (s *AssessmentService) checkEligible(ctx context.Context, userID int, step model.Step) error {
	blocked, err := s.testRepo.HasRetakeBlock(ctx, userID)
	if err != nil {
		return fmt.Errorf("check retake block: %w", err)
	}
	if blocked {
		return ErrRetakeBlocked
	}

	if step > model.StepOne {
		ok, err := s.testRepo.CanProceedFromStep(ctx, userID, step-1)
		if err != nil {
			return fmt.Errorf("check progression: %w", err)
		}
		if !ok {
			return ErrNotEligible
		}
	}

	_, err = s.testRepo.GetActiveByUser(ctx, userID)
	if err == nil {
		return ErrAttemptActive
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check active attempt: %w", err)
	}
	return nil
}

// Start creates a new attempt: eligibility gate, random question draw at
// the step's two levels, frozen order, and the Redis hot-path keys.
func (s *AssessmentService) Start(ctx context.Context, userID int, step model.Step) (*model.StartView, error) {
	if !step.Valid() {
		return nil, ErrInvalidStep
	}
	if err := s.checkEligible(ctx, userID, step); err != nil {
		return nil, err
	}

	levels := step.Levels()
	available, err := s.qRepo.CountActiveForLevels(ctx, levels[:])
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	if available < s.cfg.QuestionsPerStep {
		return nil, ErrInsufficientBank
	}

	ids, err := s.qRepo.SampleIDsForLevels(ctx, levels[:], s.cfg.QuestionsPerStep)
	if err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}

	order := make([]string, len(ids))
	for i, id := range ids {
		order[i] = id.String()
	}

	test := &model.Test{
		UserID:           userID,
		Step:             step,
		QuestionOrder:    order,
		TotalQuestions:   len(order),
		TimeLimitSeconds: s.cfg.QuestionsPerStep * s.cfg.SecondsPerQuestion,
	}
	if err := s.testRepo.Create(ctx, test); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.cacheAttempt(ctx, test)

	s.log.Info().Str("test_id", test.ID.String()).Int("user_id", userID).
		Int("step", int(step)).Int("questions", len(order)).Msg("Attempt started")

	return &model.StartView{
		TestID:         test.ID.String(),
		Step:           step,
		TotalQuestions: test.TotalQuestions,
	}, nil
}

// cacheAttempt writes the hot-path keys. Failures are logged, not fatal:
// every read path falls back to PostgreSQL and self-heals.
func (s *AssessmentService) cacheAttempt(ctx context.Context, test *model.Test) {
	id := test.ID.String()
	deadline := test.StartedAt.Add(time.Duration(test.TimeLimitSeconds) * time.Second)

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.TestStartKey(id), test.StartedAt.Unix(), 0)
	pipe.Set(ctx, config.CacheKey.TestDurationKey(id), test.TimeLimitSeconds, 0)
	pipe.Set(ctx, config.CacheKey.UserActiveTestKey(test.UserID), id, 0)
	pipe.ZAdd(ctx, config.CacheKey.DeadlineIndexKey(), redis.Z{
		Score:  float64(deadline.Unix()),
		Member: id,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("test_id", id).Msg("Failed to cache attempt hot path")
	}
}

// timeRemaining computes the authoritative remaining seconds from the Redis
// start-time key, falling back to PostgreSQL and self-healing the cache.
func (s *AssessmentService) timeRemaining(ctx context.Context, test *model.Test) int {
	startKey := config.CacheKey.TestStartKey(test.ID.String())
	startUnix := test.StartedAt.Unix()

	val, err := s.rdb.Get(ctx, startKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		_ = s.rdb.Set(ctx, startKey, startUnix, 0).Err()
	case err != nil:
		s.log.Warn().Err(err).Msg("Redis error reading start time, using database value")
	default:
		if parsed, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			startUnix = parsed
		}
	}

	deadline := time.Unix(startUnix, 0).Add(time.Duration(test.TimeLimitSeconds) * time.Second)
	remaining := int(time.Until(deadline).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// CurrentQuestion returns the attempt's current question with progress and
// navigation data. Idempotent: repeated calls before a submission return
// the same question. The Question field is nil once the order is exhausted.
func (s *AssessmentService) CurrentQuestion(ctx context.Context, testID string) (*model.CurrentQuestionView, error) {
	test, err := s.getAttempt(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status != model.TestStatusActive {
		return nil, ErrAttemptNotActive
	}

	view := &model.CurrentQuestionView{
		Progress: s.progressFor(ctx, test),
	}

	if test.CurrentIndex < test.TotalQuestions {
		qid, err := uuid.Parse(test.QuestionOrder[test.CurrentIndex])
		if err != nil {
			return nil, fmt.Errorf("corrupt question order: %w", err)
		}
		q, err := s.qRepo.GetView(ctx, qid)
		if err != nil {
			return nil, fmt.Errorf("get question: %w", err)
		}
		view.Question = q
	}

	view.Navigation = model.Navigation{
		CanGoNext:     view.Question != nil,
		CanGoPrevious: false,
		CanSkip:       false,
		CanSubmitTest: true,
	}
	return view, nil
}

func (s *AssessmentService) progressFor(ctx context.Context, test *model.Test) model.TestProgress {
	percentage := 0.0
	if test.TotalQuestions > 0 {
		percentage = float64(test.QuestionsAnswered) / float64(test.TotalQuestions) * 100
	}
	return model.TestProgress{
		CurrentIndex:       test.CurrentIndex,
		TotalQuestions:     test.TotalQuestions,
		QuestionsAnswered:  test.QuestionsAnswered,
		ProgressPercentage: percentage,
		TimeRemaining:      s.timeRemaining(ctx, test),
		IsLastQuestion:     test.CurrentIndex == test.TotalQuestions-1,
		HasNextQuestion:    test.CurrentIndex < test.TotalQuestions-1,
	}
}

// SubmitAnswer records the answer for the current question and advances
// the pointer. The (attempt, question) pair accepts exactly one effective
// submission; the submitted question must be the current one.
func (s *AssessmentService) SubmitAnswer(ctx context.Context, testID, questionID string, selectedIndex, timeSpent int) (*model.SubmitAnswerView, error) {
	test, err := s.getAttempt(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status != model.TestStatusActive {
		return nil, ErrAttemptNotActive
	}
	if test.CurrentIndex >= test.TotalQuestions {
		return nil, ErrQuestionMismatch
	}
	if test.QuestionOrder[test.CurrentIndex] != questionID {
		return nil, ErrQuestionMismatch
	}

	qid, err := uuid.Parse(questionID)
	if err != nil {
		return nil, ErrQuestionMismatch
	}
	question, err := s.qRepo.GetByID(ctx, qid)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	if selectedIndex < 0 || selectedIndex >= len(question.Options) {
		return nil, ErrAnswerOutOfBounds
	}

	isCorrect := selectedIndex == question.CorrectOption
	effective, err := s.testRepo.RecordResponse(ctx, test.ID, qid, selectedIndex, isCorrect, timeSpent)
	if err != nil {
		return nil, fmt.Errorf("record response: %w", err)
	}
	if !effective {
		return nil, ErrAlreadyAnswered
	}

	advanced, err := s.testRepo.AdvancePointer(ctx, test.ID, test.CurrentIndex)
	if err != nil {
		return nil, fmt.Errorf("advance pointer: %w", err)
	}
	if !advanced {
		// A concurrent submission moved the pointer first; the response row
		// is already recorded, so the answer itself is not lost.
		return nil, ErrQuestionMismatch
	}

	s.queueResult(ctx, testID, timeSpent)

	newIndex := test.CurrentIndex + 1
	return &model.SubmitAnswerView{
		IsCorrect:      isCorrect,
		NewIndex:       newIndex,
		IsLastQuestion: newIndex >= test.TotalQuestions,
	}, nil
}

func (s *AssessmentService) queueResult(ctx context.Context, testID string, timeSpent int) {
	data, _ := json.Marshal(resultPayload{TestID: testID, TimeSpent: timeSpent})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, data).Err(); err != nil {
		s.log.Warn().Err(err).Str("test_id", testID).Msg("Failed to queue time-spent payload")
	}
}

// Complete scores the attempt and writes the terminal record. The
// ACTIVE → COMPLETING claim is a conditional update, so concurrent callers
// (manual end, timer expiry, violation auto-submit, deadline sweep) race
// safely: one scores, the rest read the stored result.
func (s *AssessmentService) Complete(ctx context.Context, testID string, totalTimeSpent int, reason model.CompletionReason) (*model.CompletionView, error) {
	test, err := s.getAttempt(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status == model.TestStatusCompleted {
		return s.completionView(ctx, test)
	}
	if test.Status != model.TestStatusActive && test.Status != model.TestStatusCompleting {
		return nil, ErrAttemptNotActive
	}

	claimed, err := s.testRepo.ClaimCompletion(ctx, test.ID)
	if err != nil {
		return nil, fmt.Errorf("claim completion: %w", err)
	}
	if !claimed {
		// Somebody else is scoring right now, or already finished.
		fresh, err := s.getAttempt(ctx, testID)
		if err != nil {
			return nil, err
		}
		if fresh.Status == model.TestStatusCompleted {
			return s.completionView(ctx, fresh)
		}
		return nil, ErrCompletionInProgress
	}

	view, err := s.score(ctx, test, totalTimeSpent, reason)
	if err != nil {
		if relErr := s.testRepo.ReleaseClaim(ctx, test.ID); relErr != nil {
			s.log.Error().Err(relErr).Str("test_id", testID).Msg("Failed to release completion claim")
		}
		return nil, err
	}

	s.dropAttemptCache(ctx, test)

	s.log.Info().Str("test_id", testID).Str("reason", string(reason)).
		Float64("score", view.Score).Str("level", string(view.LevelAchieved)).Msg("Attempt completed")
	return view, nil
}

func (s *AssessmentService) score(ctx context.Context, test *model.Test, totalTimeSpent int, reason model.CompletionReason) (*model.CompletionView, error) {
	correct, err := s.testRepo.CountCorrect(ctx, test.ID)
	if err != nil {
		return nil, fmt.Errorf("count correct: %w", err)
	}

	score := 0.0
	if test.TotalQuestions > 0 {
		score = float64(correct) / float64(test.TotalQuestions) * 100
	}

	level, canProceed, blocksRetake := s.mapScore(test.Step, score)

	view := &model.CompletionView{
		TestID:               test.ID.String(),
		Step:                 test.Step,
		Score:                score,
		LevelAchieved:        level,
		CanProceedToNextStep: canProceed,
		BlocksRetake:         blocksRetake,
	}

	var certID *uuid.UUID
	if level != model.LevelFail {
		cert := &model.Certificate{
			UserID:        test.UserID,
			TestID:        test.ID,
			LevelAchieved: level,
		}
		if err := s.certRepo.Create(ctx, cert); err != nil {
			return nil, fmt.Errorf("issue certificate: %w", err)
		}
		certID = &cert.ID
		view.Certificate = &model.CertificateRef{ID: cert.ID.String(), LevelAchieved: level}
	}

	if totalTimeSpent < test.TimeSpentSeconds {
		totalTimeSpent = test.TimeSpentSeconds
	}

	test.Score = &score
	test.LevelAchieved = &level
	test.CanProceed = canProceed
	test.BlocksRetake = blocksRetake
	test.CertificateID = certID
	test.CompletionReason = &reason
	test.TimeSpentSeconds = totalTimeSpent

	if err := s.testRepo.FinalizeCompletion(ctx, test); err != nil {
		return nil, fmt.Errorf("finalize completion: %w", err)
	}
	return view, nil
}

// mapScore translates a percentage into the achieved level for the step.
// Below the retake threshold the attempt lands on the failure sentinel;
// on step 1 that additionally blocks retaking the whole assessment.
func (s *AssessmentService) mapScore(step model.Step, score float64) (level model.Level, canProceed, blocksRetake bool) {
	levels := step.Levels()
	switch {
	case score < s.cfg.RetakeThresholdPercent:
		return model.LevelFail, false, step == model.StepOne
	case score < 50:
		return levels[0], false, false
	case score < 75:
		return levels[0], step < model.StepThree, false
	default:
		return levels[1], step < model.StepThree, false
	}
}

// dropAttemptCache removes the attempt's hot-path keys once it is terminal.
func (s *AssessmentService) dropAttemptCache(ctx context.Context, test *model.Test) {
	id := test.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx,
		config.CacheKey.TestStartKey(id),
		config.CacheKey.TestDurationKey(id),
		config.CacheKey.ViolationLatchKey(id),
		config.CacheKey.UserActiveTestKey(test.UserID),
	)
	pipe.ZRem(ctx, config.CacheKey.DeadlineIndexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("test_id", id).Msg("Failed to drop attempt cache")
	}
}

// Results re-reads a completed attempt's outcome.
func (s *AssessmentService) Results(ctx context.Context, testID string) (*model.CompletionView, error) {
	test, err := s.getAttempt(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status != model.TestStatusCompleted {
		return nil, ErrAttemptNotCompleted
	}
	return s.completionView(ctx, test)
}

func (s *AssessmentService) completionView(ctx context.Context, test *model.Test) (*model.CompletionView, error) {
	view := &model.CompletionView{
		TestID: test.ID.String(),
		Step:   test.Step,
	}
	if test.Score != nil {
		view.Score = *test.Score
	}
	if test.LevelAchieved != nil {
		view.LevelAchieved = *test.LevelAchieved
	}
	view.CanProceedToNextStep = test.CanProceed
	view.BlocksRetake = test.BlocksRetake

	if test.CertificateID != nil {
		cert, err := s.certRepo.GetByID(ctx, *test.CertificateID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("get certificate: %w", err)
			}
		} else {
			view.Certificate = &model.CertificateRef{ID: cert.ID.String(), LevelAchieved: cert.LevelAchieved}
		}
	}
	return view, nil
}

// Active retrieves the user's running attempt, if any.
func (s *AssessmentService) Active(ctx context.Context, userID int) (*model.Test, error) {
	test, err := s.testRepo.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get active attempt: %w", err)
	}
	return test, nil
}

// Attempt retrieves an attempt by id.
func (s *AssessmentService) Attempt(ctx context.Context, testID string) (*model.Test, error) {
	return s.getAttempt(ctx, testID)
}

// History retrieves the user's completed attempts.
func (s *AssessmentService) History(ctx context.Context, userID int) ([]model.Test, error) {
	return s.testRepo.History(ctx, userID)
}

// Abandon marks a running attempt as walked away from and drops its cache.
func (s *AssessmentService) Abandon(ctx context.Context, testID string) error {
	test, err := s.getAttempt(ctx, testID)
	if err != nil {
		return err
	}
	abandoned, err := s.testRepo.Abandon(ctx, test.ID)
	if err != nil {
		return fmt.Errorf("abandon attempt: %w", err)
	}
	if !abandoned {
		return ErrAttemptNotActive
	}
	s.dropAttemptCache(ctx, test)
	return nil
}

// LatchViolation sets the cross-instance one-shot latch for the attempt.
// Returns whether this call won the latch.
func (s *AssessmentService) LatchViolation(ctx context.Context, testID string) (bool, error) {
	ttl := time.Duration(s.cfg.QuestionsPerStep*s.cfg.SecondsPerQuestion) * time.Second
	return s.rdb.SetNX(ctx, config.CacheKey.ViolationLatchKey(testID), 1, ttl).Result()
}

// RecordViolation queues an integrity signal for the violation worker.
// Audit is best-effort: a queue failure is logged and swallowed so it can
// never interfere with the forced-submission path.
func (s *AssessmentService) RecordViolation(ctx context.Context, testID string, userID int, reason model.ViolationReason, forced bool, payload string) {
	data, _ := json.Marshal(violationPayload{
		TestID:    testID,
		UserID:    userID,
		Reason:    string(reason),
		Forced:    forced,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err(); err != nil {
		s.log.Error().Err(err).Str("test_id", testID).Msg("Failed to queue violation event")
	}
}

// ListResults retrieves completed attempts with account data for the admin
// surface.
func (s *AssessmentService) ListResults(ctx context.Context, page, perPage int, step *model.Step) ([]repository.ResultRow, int64, error) {
	return s.testRepo.ListResults(ctx, page, perPage, step)
}

func (s *AssessmentService) getAttempt(ctx context.Context, testID string) (*model.Test, error) {
	id, err := uuid.Parse(testID)
	if err != nil {
		return nil, ErrAttemptNotFound
	}
	test, err := s.testRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return test, nil
}
