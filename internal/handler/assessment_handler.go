package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/testschool/assessment-backend/internal/middleware"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/response"
	"github.com/testschool/assessment-backend/internal/service"
	"github.com/testschool/assessment-backend/internal/session"
	"github.com/testschool/assessment-backend/internal/validator"
)

// AssessmentHandler handles the test-taking endpoints. Attempt lifecycle
// goes through the session manager so the per-user state machine governs
// every path: start, answer, manual completion, timeout, and violation.
type AssessmentHandler struct {
	sessions          *session.Manager
	assessmentService *service.AssessmentService
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(sessions *session.Manager, assessmentService *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{
		sessions:          sessions,
		assessmentService: assessmentService,
	}
}

// controllerFor returns the session controller for the attempt, adopting
// it after a process restart if the attempt is still active in storage.
func (h *AssessmentHandler) controllerFor(c *gin.Context, testID string) (*session.Controller, bool) {
	if ctrl, ok := h.sessions.ByTest(testID); ok {
		return ctrl, true
	}

	attempt, err := h.assessmentService.Attempt(c.Request.Context(), testID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return nil, false
	}
	if attempt.Status != model.TestStatusActive {
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
		return nil, false
	}
	return h.sessions.Resume(attempt.UserID, attempt.ID.String(), attempt.Step, attempt.TimeSpentSeconds), true
}

// GetEligibility godoc
// GET /api/v1/assessment/eligibility?step=N
// Reports whether the user may start the given step and why not otherwise.
func (h *AssessmentHandler) GetEligibility(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	stepNum, err := strconv.Atoi(c.DefaultQuery("step", "1"))
	if err != nil || !model.Step(stepNum).Valid() {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidStep)
		return
	}

	view, err := h.assessmentService.Eligibility(c.Request.Context(), claims.UserID, model.Step(stepNum))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"eligibility": view})
}

// StartTest godoc
// POST /api/v1/assessment/start
// Starts an attempt for the requested step.
func (h *AssessmentHandler) StartTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	_, view, err := h.sessions.Start(c.Request.Context(), claims.UserID, model.Step(req.Step))
	if err != nil {
		h.failStart(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"test": view})
}

func (h *AssessmentHandler) failStart(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidStep), errors.Is(err, service.ErrInvalidStep):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidStep)
	case errors.Is(err, session.ErrAlreadyStarted), errors.Is(err, service.ErrAttemptActive):
		response.Fail(c, http.StatusConflict, response.ErrAttemptActive)
	case errors.Is(err, service.ErrRetakeBlocked):
		response.Fail(c, http.StatusForbidden, response.ErrRetakeBlocked)
	case errors.Is(err, service.ErrNotEligible):
		response.Fail(c, http.StatusForbidden, response.ErrNotEligible)
	case errors.Is(err, service.ErrInsufficientBank):
		response.Fail(c, http.StatusConflict, response.ErrInsufficientBank)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// GetCurrentQuestion godoc
// GET /api/v1/assessment/tests/:testId/current-question
// Returns the question at the attempt pointer with progress and timing.
func (h *AssessmentHandler) GetCurrentQuestion(c *gin.Context) {
	ctrl, ok := h.controllerFor(c, c.Param("testId"))
	if !ok {
		return
	}

	view, err := ctrl.FetchCurrentQuestion(c.Request.Context())
	if err != nil {
		if errors.Is(err, session.ErrNotActive) {
			// The fetch itself may have driven the attempt to completion
			// (time expired or final question answered).
			if snap := ctrl.Snapshot(); snap.IsCompleted {
				response.Success(c, http.StatusOK, gin.H{"completed": true, "result": snap.Result})
				return
			}
			response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	snap := ctrl.Snapshot()
	if snap.IsCompleted {
		response.Success(c, http.StatusOK, gin.H{"completed": true, "result": snap.Result})
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question":   view.Question,
		"progress":   view.Progress,
		"navigation": view.Navigation,
	})
}

// SubmitAnswer godoc
// POST /api/v1/assessment/tests/:testId/submit-answer
// Records the answer for the current question and advances the pointer.
func (h *AssessmentHandler) SubmitAnswer(c *gin.Context) {
	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, ok := h.controllerFor(c, c.Param("testId"))
	if !ok {
		return
	}

	// An adopted controller has no question loaded yet.
	if ctrl.CurrentQuestionID() == "" {
		if _, err := ctrl.FetchCurrentQuestion(c.Request.Context()); err != nil && !errors.Is(err, session.ErrNotActive) {
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}
	}
	if ctrl.CurrentQuestionID() != req.QuestionID {
		response.Fail(c, http.StatusConflict, response.ErrQuestionMismatch)
		return
	}

	view, err := ctrl.SubmitAnswer(c.Request.Context(), *req.SelectedOptionIndex, req.TimeSpent)
	if err != nil {
		h.failSubmit(c, err)
		return
	}

	snap := ctrl.Snapshot()
	response.Success(c, http.StatusOK, gin.H{
		"result":    view,
		"completed": snap.IsCompleted,
	})
}

func (h *AssessmentHandler) failSubmit(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSubmissionInFlight):
		response.Fail(c, http.StatusConflict, response.ErrSubmissionInFlight)
	case errors.Is(err, session.ErrNotActive), errors.Is(err, service.ErrAttemptNotActive):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
	case errors.Is(err, session.ErrNoCurrentQuestion), errors.Is(err, service.ErrQuestionMismatch), errors.Is(err, service.ErrAlreadyAnswered):
		response.Fail(c, http.StatusConflict, response.ErrQuestionMismatch)
	case errors.Is(err, service.ErrAnswerOutOfBounds):
		response.Fail(c, http.StatusBadRequest, response.ErrAnswerOutOfBounds)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// CompleteTest godoc
// POST /api/v1/assessment/tests/:testId/complete
// Ends the attempt, scores it, and returns the outcome.
func (h *AssessmentHandler) CompleteTest(c *gin.Context) {
	ctrl, ok := h.controllerFor(c, c.Param("testId"))
	if !ok {
		return
	}

	result, err := ctrl.Complete(c.Request.Context(), model.CompletionManual)
	if err != nil {
		if errors.Is(err, session.ErrNotActive) {
			response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// AbandonTest godoc
// POST /api/v1/assessment/tests/:testId/abandon
// Marks the attempt abandoned without scoring it.
func (h *AssessmentHandler) AbandonTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID := c.Param("testId")
	if err := h.assessmentService.Abandon(c.Request.Context(), testID); err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrAttemptNotActive):
			response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	h.sessions.Release(claims.UserID)
	response.Success(c, http.StatusOK, gin.H{})
}

// GetResults godoc
// GET /api/v1/assessment/tests/:testId/results
// Returns the outcome of a completed attempt.
func (h *AssessmentHandler) GetResults(c *gin.Context) {
	view, err := h.assessmentService.Results(c.Request.Context(), c.Param("testId"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrAttemptNotCompleted):
			response.Fail(c, http.StatusConflict, response.ErrResultsNotAvailable)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": view})
}

// GetActive godoc
// GET /api/v1/assessment/active
// Returns the user's in-progress attempt, if any.
func (h *AssessmentHandler) GetActive(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempt, err := h.assessmentService.Active(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			response.Success(c, http.StatusOK, gin.H{"test": nil})
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": attempt})
}

// GetHistory godoc
// GET /api/v1/assessment/history
// Returns the user's past attempts, newest first.
func (h *AssessmentHandler) GetHistory(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	tests, err := h.assessmentService.History(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if tests == nil {
		tests = []model.Test{}
	}

	response.Success(c, http.StatusOK, gin.H{"tests": tests})
}
