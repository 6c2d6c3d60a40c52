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

// GradingHandler handles the instructor side of attempts: listings and
// manual grading.
type GradingHandler struct {
	attemptService *service.AttemptService
	clock          service.Clock
	log            zerolog.Logger
}

// NewGradingHandler creates a new GradingHandler.
func NewGradingHandler(attemptService *service.AttemptService, clock service.Clock, log zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		attemptService: attemptService,
		clock:          clock,
		log:            log.With().Str("component", "grading_handler").Logger(),
	}
}

// ListAttempts godoc
// GET /api/v1/instructor/exams/:exam_id/attempts
func (h *GradingHandler) ListAttempts(c *gin.Context) {
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

// ListPending godoc
// GET /api/v1/instructor/exams/:exam_id/gradings
// Lists submitted attempts with answers awaiting a manual mark.
func (h *GradingHandler) ListPending(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	pending, err := h.attemptService.ListPendingGradings(c.Request.Context(), actor, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"gradings": pending})
}

// RecordGrade godoc
// PUT /api/v1/instructor/attempts/:attempt_id/grades
// Records or replaces the mark of one manually graded question.
func (h *GradingHandler) RecordGrade(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.ManualGradeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.RecordManualGrade(c.Request.Context(), actor, attemptID, &req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// FinalizeGrading godoc
// POST /api/v1/instructor/attempts/:attempt_id/finalize
func (h *GradingHandler) FinalizeGrading(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.FinalizeGrading(c.Request.Context(), actor, attemptID, h.clock.Now())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
