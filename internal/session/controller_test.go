package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testschool/assessment-backend/internal/model"
)

// stubService is an in-memory Service with injectable behavior per call.
type stubService struct {
	mu sync.Mutex

	startCalls    int32
	currentCalls  int32
	submitCalls   int32
	completeCalls int32

	startFn    func(ctx context.Context, userID int, step model.Step) (*model.StartView, error)
	currentFn  func(ctx context.Context, testID string) (*model.CurrentQuestionView, error)
	submitFn   func(ctx context.Context, testID, questionID string, selectedIndex, timeSpent int) (*model.SubmitAnswerView, error)
	completeFn func(ctx context.Context, testID string, totalTimeSpent int, reason model.CompletionReason) (*model.CompletionView, error)

	lastReason model.CompletionReason
}

func (s *stubService) Start(ctx context.Context, userID int, step model.Step) (*model.StartView, error) {
	atomic.AddInt32(&s.startCalls, 1)
	if s.startFn != nil {
		return s.startFn(ctx, userID, step)
	}
	return &model.StartView{TestID: "test-1", Step: step, TotalQuestions: 44}, nil
}

func (s *stubService) CurrentQuestion(ctx context.Context, testID string) (*model.CurrentQuestionView, error) {
	atomic.AddInt32(&s.currentCalls, 1)
	if s.currentFn != nil {
		return s.currentFn(ctx, testID)
	}
	return questionView("q-1", 0, 600), nil
}

func (s *stubService) SubmitAnswer(ctx context.Context, testID, questionID string, selectedIndex, timeSpent int) (*model.SubmitAnswerView, error) {
	atomic.AddInt32(&s.submitCalls, 1)
	if s.submitFn != nil {
		return s.submitFn(ctx, testID, questionID, selectedIndex, timeSpent)
	}
	return &model.SubmitAnswerView{IsCorrect: true, NewIndex: 1}, nil
}

func (s *stubService) Complete(ctx context.Context, testID string, totalTimeSpent int, reason model.CompletionReason) (*model.CompletionView, error) {
	atomic.AddInt32(&s.completeCalls, 1)
	s.mu.Lock()
	s.lastReason = reason
	s.mu.Unlock()
	if s.completeFn != nil {
		return s.completeFn(ctx, testID, totalTimeSpent, reason)
	}
	return &model.CompletionView{TestID: testID, Step: 1, Score: 75, LevelAchieved: model.LevelA2}, nil
}

func (s *stubService) completionReason() model.CompletionReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReason
}

func questionView(id string, index, remaining int) *model.CurrentQuestionView {
	return &model.CurrentQuestionView{
		Question: &model.QuestionView{ID: id, QuestionText: "Pick one", Options: []string{"a", "b", "c", "d"}},
		Progress: model.TestProgress{
			CurrentIndex:   index,
			TotalQuestions: 44,
			TimeRemaining:  remaining,
		},
		Navigation: model.Navigation{CanGoNext: true},
	}
}

func newTestController(svc Service) *Controller {
	cfg := Config{TickInterval: 5 * time.Millisecond, ViolationGrace: 20 * time.Millisecond}
	return NewController(svc, cfg, zerolog.Nop(), 7)
}

func TestStartRejectsInvalidStepBeforeRemoteCall(t *testing.T) {
	svc := &stubService{}
	c := newTestController(svc)

	_, err := c.Start(context.Background(), model.Step(4))
	assert.ErrorIs(t, err, ErrInvalidStep)
	assert.Equal(t, int32(0), atomic.LoadInt32(&svc.startCalls))
	assert.Equal(t, StateNotStarted, c.State())
}

func TestStartTransitionsToActive(t *testing.T) {
	svc := &stubService{}
	c := newTestController(svc)

	sv, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)
	assert.Equal(t, "test-1", sv.TestID)
	assert.Equal(t, StateActive, c.State())
	assert.Equal(t, MonitorArmed, c.MonitorState())

	_, err = c.Start(context.Background(), model.Step(1))
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestStartFailureEntersErrorAndAllowsRetry(t *testing.T) {
	svc := &stubService{
		startFn: func(ctx context.Context, userID int, step model.Step) (*model.StartView, error) {
			return nil, errors.New("bank too small")
		},
	}
	c := newTestController(svc)

	_, err := c.Start(context.Background(), model.Step(2))
	require.Error(t, err)
	assert.Equal(t, StateError, c.State())
	assert.Equal(t, "bank too small", c.Snapshot().Error)

	svc.startFn = nil
	_, err = c.Start(context.Background(), model.Step(2))
	require.NoError(t, err)
	assert.Equal(t, StateActive, c.State())
}

func TestResetRestoresInitialSnapshot(t *testing.T) {
	svc := &stubService{}
	c := newTestController(svc)
	initial := c.Snapshot()

	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)
	_, err = c.FetchCurrentQuestion(context.Background())
	require.NoError(t, err)

	c.Reset()
	assert.Equal(t, initial, c.Snapshot())
	assert.Equal(t, MonitorInactive, c.MonitorState())
}

func TestResetDiscardsInFlightStart(t *testing.T) {
	release := make(chan struct{})
	svc := &stubService{
		startFn: func(ctx context.Context, userID int, step model.Step) (*model.StartView, error) {
			<-release
			return &model.StartView{TestID: "late", Step: step, TotalQuestions: 44}, nil
		},
	}
	c := newTestController(svc)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Start(context.Background(), model.Step(1))
		errCh <- err
	}()
	waitFor(t, func() bool { return c.State() == StateStarting })

	c.Reset()
	close(release)

	assert.ErrorIs(t, <-errCh, ErrSuperseded)
	assert.Equal(t, StateNotStarted, c.State())
	assert.Empty(t, c.TestID())
}

func TestSubmitAnswerIsSingleFlight(t *testing.T) {
	block := make(chan struct{})
	svc := &stubService{
		submitFn: func(ctx context.Context, testID, questionID string, selectedIndex, timeSpent int) (*model.SubmitAnswerView, error) {
			<-block
			return &model.SubmitAnswerView{IsCorrect: true, NewIndex: 1}, nil
		},
	}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)
	_, err = c.FetchCurrentQuestion(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitAnswer(context.Background(), 2, 30)
		done <- err
	}()
	waitFor(t, func() bool { return atomic.LoadInt32(&svc.submitCalls) == 1 })

	_, err = c.SubmitAnswer(context.Background(), 2, 30)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&svc.submitCalls))
}

func TestSubmitAnswerRequiresCurrentQuestion(t *testing.T) {
	svc := &stubService{}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)

	_, err = c.SubmitAnswer(context.Background(), 0, 10)
	assert.ErrorIs(t, err, ErrNoCurrentQuestion)
}

func TestConcurrentCompleteCallsServiceOnce(t *testing.T) {
	svc := &stubService{}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*model.CompletionView, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Complete(context.Background(), model.CompletionManual)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&svc.completeCalls))
	assert.Equal(t, StateCompleted, c.State())

	// Every caller, winner or not, observes the same terminal result.
	final := c.Snapshot().Result
	require.NotNil(t, final)
	for i := range results {
		require.NoError(t, errs[i])
		assert.Same(t, final, results[i])
	}
}

func TestLateCompleteWaitsForTerminalResult(t *testing.T) {
	release := make(chan struct{})
	svc := &stubService{
		completeFn: func(ctx context.Context, testID string, totalTimeSpent int, reason model.CompletionReason) (*model.CompletionView, error) {
			<-release
			return &model.CompletionView{TestID: testID, Step: 1, Score: 80, LevelAchieved: model.LevelA2}, nil
		},
	}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		res, err := c.Complete(context.Background(), model.CompletionManual)
		assert.NoError(t, err)
		assert.NotNil(t, res)
	}()

	// Wait for the first caller to enter Completing before racing it.
	require.Eventually(t, func() bool {
		return c.State() == StateCompleting
	}, time.Second, time.Millisecond)

	secondDone := make(chan struct{})
	var secondRes *model.CompletionView
	var secondErr error
	go func() {
		defer close(secondDone)
		secondRes, secondErr = c.Complete(context.Background(), model.CompletionManual)
	}()

	// The second caller must block rather than return an empty result.
	select {
	case <-secondDone:
		t.Fatal("second caller returned before completion finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-firstDone
	<-secondDone

	require.NoError(t, secondErr)
	require.NotNil(t, secondRes)
	assert.Equal(t, float64(80), secondRes.Score)
	assert.Equal(t, model.LevelA2, secondRes.LevelAchieved)
	assert.Equal(t, int32(1), atomic.LoadInt32(&svc.completeCalls))
}

func TestLateCompleteHonorsContextCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	svc := &stubService{
		completeFn: func(ctx context.Context, testID string, totalTimeSpent int, reason model.CompletionReason) (*model.CompletionView, error) {
			<-release
			return &model.CompletionView{TestID: testID, Step: 1}, nil
		},
	}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)

	go func() {
		_, _ = c.Complete(context.Background(), model.CompletionManual)
	}()
	require.Eventually(t, func() bool {
		return c.State() == StateCompleting
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Complete(ctx, model.CompletionManual)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompleteFailsOpenOnServiceError(t *testing.T) {
	svc := &stubService{
		completeFn: func(ctx context.Context, testID string, totalTimeSpent int, reason model.CompletionReason) (*model.CompletionView, error) {
			return nil, errors.New("database down")
		},
	}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(2))
	require.NoError(t, err)

	res, err := c.Complete(context.Background(), model.CompletionManual)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, "test-1", res.TestID)
	assert.Zero(t, res.Score)
	assert.Empty(t, res.LevelAchieved)
	assert.Nil(t, res.Certificate)
	assert.False(t, res.CanProceedToNextStep)
}

func TestCompleteBeforeStartRejected(t *testing.T) {
	svc := &stubService{}
	c := newTestController(svc)

	_, err := c.Complete(context.Background(), model.CompletionManual)
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Equal(t, int32(0), atomic.LoadInt32(&svc.completeCalls))
}

func TestFetchWithNoQuestionCompletesAsFinished(t *testing.T) {
	svc := &stubService{
		currentFn: func(ctx context.Context, testID string) (*model.CurrentQuestionView, error) {
			return &model.CurrentQuestionView{
				Question: nil,
				Progress: model.TestProgress{CurrentIndex: 44, TotalQuestions: 44, QuestionsAnswered: 44, TimeRemaining: 120},
			}, nil
		},
	}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)

	_, err = c.FetchCurrentQuestion(context.Background())
	require.NoError(t, err)
	waitFor(t, func() bool { return c.State() == StateCompleted })
	assert.Equal(t, model.CompletionFinished, svc.completionReason())
}

func TestFetchWithExpiredTimeCompletesAsTimeout(t *testing.T) {
	svc := &stubService{
		currentFn: func(ctx context.Context, testID string) (*model.CurrentQuestionView, error) {
			return questionView("q-9", 9, 0), nil
		},
	}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)

	_, err = c.FetchCurrentQuestion(context.Background())
	require.NoError(t, err)
	waitFor(t, func() bool { return c.State() == StateCompleted })
	assert.Equal(t, model.CompletionTimeout, svc.completionReason())
}

func TestRemainingTimeDerivedFromLastFetch(t *testing.T) {
	svc := &stubService{}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)
	_, err = c.FetchCurrentQuestion(context.Background())
	require.NoError(t, err)

	// The countdown is anchored to the fetch's server value and the timer's
	// elapsed reading, so it never drifts below value-minus-elapsed even
	// when ticks are missed.
	waitFor(t, func() bool { return c.Snapshot().TimeElapsed >= 3 })
	snap := c.Snapshot()
	assert.Less(t, snap.TimeRemaining, 600)
	assert.GreaterOrEqual(t, snap.TimeRemaining, 600-snap.TimeElapsed)

	// A fresh fetch overwrites the anchor with the server's value.
	svc.currentFn = func(ctx context.Context, testID string) (*model.CurrentQuestionView, error) {
		return questionView("q-2", 1, 480), nil
	}
	_, err = c.FetchCurrentQuestion(context.Background())
	require.NoError(t, err)
	rem := c.Snapshot().TimeRemaining
	assert.LessOrEqual(t, rem, 480)
	assert.GreaterOrEqual(t, rem, 478)
}

func TestTimerDrivenTimeoutCompletes(t *testing.T) {
	svc := &stubService{
		currentFn: func(ctx context.Context, testID string) (*model.CurrentQuestionView, error) {
			return questionView("q-1", 0, 2), nil
		},
	}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)
	_, err = c.FetchCurrentQuestion(context.Background())
	require.NoError(t, err)

	// Two remaining units and a 5ms tick: expiry arrives within a few ticks.
	waitFor(t, func() bool { return c.State() == StateCompleted })
	assert.Equal(t, model.CompletionTimeout, svc.completionReason())
}

func TestViolationAutoSubmitAfterGrace(t *testing.T) {
	svc := &stubService{}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)

	var warned, autoSubmitted atomic.Bool
	c.SetNotify(func(ev Event) {
		switch ev.Type {
		case EventWarning:
			warned.Store(true)
		case EventAutoSubmitted:
			autoSubmitted.Store(true)
		}
	})

	require.True(t, c.ReportSignal(model.ReasonTabSwitch))
	assert.True(t, warned.Load())
	assert.False(t, autoSubmitted.Load())
	assert.NotEqual(t, StateCompleted, c.State(), "grace delay must elapse before auto-submit")

	waitFor(t, func() bool { return autoSubmitted.Load() })
	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, model.CompletionViolation, svc.completionReason())
}

func TestSimultaneousSignalsLatchOnce(t *testing.T) {
	svc := &stubService{}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)

	var warnings atomic.Int32
	c.SetNotify(func(ev Event) {
		if ev.Type == EventWarning {
			warnings.Add(1)
		}
	})

	var latched atomic.Int32
	var wg sync.WaitGroup
	reasons := []model.ViolationReason{
		model.ReasonTabSwitch, model.ReasonDevTools, model.ReasonViewSource, model.ReasonRefresh,
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(r model.ViolationReason) {
			defer wg.Done()
			if c.ReportSignal(r) {
				latched.Add(1)
			}
		}(reasons[i%len(reasons)])
	}
	wg.Wait()

	assert.Equal(t, int32(1), latched.Load())
	assert.Equal(t, int32(1), warnings.Load())

	waitFor(t, func() bool { return c.State() == StateCompleted })
	assert.Equal(t, int32(1), atomic.LoadInt32(&svc.completeCalls))
}

func TestAuditOnlySignalsDoNotLatch(t *testing.T) {
	svc := &stubService{}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)

	assert.False(t, c.ReportSignal(model.ReasonContextMenu))
	assert.False(t, c.ReportSignal(model.ReasonUnloadAttempt))
	assert.Equal(t, MonitorArmed, c.MonitorState())
	assert.Equal(t, StateActive, c.State())
}

func TestSignalIgnoredWhenNotActive(t *testing.T) {
	svc := &stubService{}
	c := newTestController(svc)

	assert.False(t, c.ReportSignal(model.ReasonTabSwitch))

	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), model.CompletionManual)
	require.NoError(t, err)

	assert.False(t, c.ReportSignal(model.ReasonTabSwitch))
}

func TestStaleFetchDiscardedAfterRestart(t *testing.T) {
	release := make(chan struct{})
	var slow atomic.Bool
	slow.Store(true)
	svc := &stubService{
		currentFn: func(ctx context.Context, testID string) (*model.CurrentQuestionView, error) {
			if slow.Load() {
				<-release
			}
			return questionView("q-old", 0, 600), nil
		},
	}
	c := newTestController(svc)
	_, err := c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.FetchCurrentQuestion(context.Background())
		errCh <- err
	}()
	waitFor(t, func() bool { return atomic.LoadInt32(&svc.currentCalls) == 1 })

	// Replace the attempt while the fetch is in flight.
	slow.Store(false)
	c.Reset()
	_, err = c.Start(context.Background(), model.Step(1))
	require.NoError(t, err)
	close(release)

	assert.ErrorIs(t, <-errCh, ErrSuperseded)
}

func TestManagerRejectsSecondActiveAttempt(t *testing.T) {
	svc := &stubService{}
	m := NewManager(svc, Config{TickInterval: 5 * time.Millisecond, ViolationGrace: 20 * time.Millisecond}, zerolog.Nop())

	ctrl, sv, err := m.Start(context.Background(), 7, model.Step(1))
	require.NoError(t, err)
	require.NotNil(t, ctrl)

	_, _, err = m.Start(context.Background(), 7, model.Step(1))
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	got, ok := m.ByTest(sv.TestID)
	require.True(t, ok)
	assert.Same(t, ctrl, got)
	got, ok = m.ByUser(7)
	require.True(t, ok)
	assert.Same(t, ctrl, got)
}

func TestManagerResumeAdoptsExistingAttempt(t *testing.T) {
	svc := &stubService{}
	m := NewManager(svc, Config{TickInterval: 5 * time.Millisecond, ViolationGrace: 20 * time.Millisecond}, zerolog.Nop())

	ctrl := m.Resume(3, "test-resumed", model.Step(2), 300)
	assert.Equal(t, StateActive, ctrl.State())
	assert.Equal(t, "test-resumed", ctrl.TestID())
	assert.Equal(t, MonitorArmed, ctrl.MonitorState())
	assert.GreaterOrEqual(t, ctrl.Snapshot().TimeElapsed, 300)
	assert.Equal(t, int32(0), atomic.LoadInt32(&svc.startCalls))

	again := m.Resume(3, "test-resumed", model.Step(2), 300)
	assert.Same(t, ctrl, again)
}

func TestManagerReleaseResetsAndUnregisters(t *testing.T) {
	svc := &stubService{}
	m := NewManager(svc, Config{TickInterval: 5 * time.Millisecond, ViolationGrace: 20 * time.Millisecond}, zerolog.Nop())

	ctrl, sv, err := m.Start(context.Background(), 7, model.Step(1))
	require.NoError(t, err)

	m.Release(7)
	assert.Equal(t, StateNotStarted, ctrl.State())
	_, ok := m.ByUser(7)
	assert.False(t, ok)
	_, ok = m.ByTest(sv.TestID)
	assert.False(t, ok)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
