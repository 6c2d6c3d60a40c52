package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/response"
	"github.com/stemsi/exstem-assess/internal/service"
	"github.com/stemsi/exstem-assess/internal/validator"
)

// AttemptHandler handles the student side of an attempt.
type AttemptHandler struct {
	attemptService *service.AttemptService
	clock          service.Clock
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, clock service.Clock, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		clock:          clock,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Opens a new attempt and returns its paper.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	attempt, paper, err := h.attemptService.Start(c.Request.Context(), actor, examID, h.clock.Now())
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"attempt": attempt.Summary(),
		"paper":   paper,
	})
}

// ListMyAttempts godoc
// GET /api/v1/student/exams/:exam_id/attempts
func (h *AttemptHandler) ListMyAttempts(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	attempts, err := h.attemptService.ListAttempts(c.Request.Context(), actor, examID, h.clock.Now())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// GetPaper godoc
// GET /api/v1/student/attempts/:attempt_id
// Resumes an in-progress attempt: the paper plus saved answers.
func (h *AttemptHandler) GetPaper(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	attempt, paper, err := h.attemptService.GetPaper(c.Request.Context(), actor, attemptID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"attempt": attempt.Summary(),
		"answers": attempt.Answers,
		"paper":   paper,
	})
}

// SaveAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/answers
// Autosaves one answer. A stale seq is acknowledged with applied=false.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	slot, applied, err := h.attemptService.SaveAnswer(c.Request.Context(), actor, attemptID, &req, h.clock.Now())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"answer": slot, "applied": applied})
}

// MarkForReview godoc
// PUT /api/v1/student/attempts/:attempt_id/review
func (h *AttemptHandler) MarkForReview(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.MarkForReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.MarkForReview(c.Request.Context(), actor, attemptID, &req, h.clock.Now()); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Submits and auto-grades. The reply is the result as the student may see it.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	now := h.clock.Now()
	if _, err := h.attemptService.Submit(c.Request.Context(), actor, attemptID, now); err != nil {
		fail(c, h.log, err)
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), actor, attemptID, now)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// AbandonAttempt godoc
// POST /api/v1/instructor/attempts/:attempt_id/abandon
// Voids a student's in-progress attempt. Only the exam's instructor or an
// admin may do this; the attempt no longer counts towards the limit.
func (h *AttemptHandler) AbandonAttempt(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.Abandon(c.Request.Context(), actor, attemptID, h.clock.Now())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt.Summary()})
}

// GetResult godoc
// GET /api/v1/attempts/:attempt_id/result
// Shared by students and staff; the service applies visibility.
func (h *AttemptHandler) GetResult(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), actor, attemptID, h.clock.Now())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}
